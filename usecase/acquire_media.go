// usecase/acquire_media.go
package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

// Acquired is the local copy of a source video.
type Acquired struct {
	Path    string
	Caption string
}

// MediaAcquisition turns a VideoReference into a local file. Attachments are
// fetched directly; links are resolved by the resolver registered for their
// platform and then fetched.
type MediaAcquisition struct {
	Downloader domain.Downloader
	Resolvers  map[Platform]domain.LinkResolver
	Logger     *zap.Logger
}

func NewMediaAcquisition(downloader domain.Downloader, resolvers map[Platform]domain.LinkResolver, logger *zap.Logger) *MediaAcquisition {
	return &MediaAcquisition{
		Downloader: downloader,
		Resolvers:  resolvers,
		Logger:     logger.Named("MediaAcquisition"),
	}
}

func (a *MediaAcquisition) Acquire(ctx context.Context, ref domain.VideoReference, dest string, started func() error) (Acquired, error) {
	switch ref.Kind {
	case domain.ReferenceAttachment:
		if err := a.Downloader.Download(ctx, ref.URL, dest, started); err != nil {
			return Acquired{}, fmt.Errorf("fetch attachment %s: %w", ref.ID, err)
		}
		return Acquired{Path: dest, Caption: ref.Title}, nil

	case domain.ReferenceLink:
		platform, url, ok := ParseVideoLink(ref.URL)
		if !ok {
			return Acquired{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, ref.URL)
		}
		resolver, ok := a.Resolvers[platform]
		if !ok {
			return Acquired{}, fmt.Errorf("%w: no resolver for %s", domain.ErrUnsupportedPlatform, platform)
		}

		resolved, err := resolver.Resolve(ctx, url)
		if err != nil {
			return Acquired{}, fmt.Errorf("resolve %s link: %w", platform, err)
		}
		if resolved.MediaURL == "" {
			return Acquired{}, fmt.Errorf("%w: empty resolver result for %s", domain.ErrDownloadFailed, url)
		}
		a.Logger.Debug("Resolved video link",
			zap.String("platform", string(platform)),
			zap.String("url", url),
		)

		if err := a.Downloader.Download(ctx, resolved.MediaURL, dest, started); err != nil {
			return Acquired{}, fmt.Errorf("fetch %s media: %w", platform, err)
		}
		return Acquired{Path: dest, Caption: resolved.Caption}, nil
	}
	return Acquired{}, fmt.Errorf("%w: reference kind %q", domain.ErrUnsupportedPlatform, ref.Kind)
}
