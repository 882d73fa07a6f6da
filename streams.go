package onvif

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// GetStreamURIs returns one result per media profile, in profile order.
// The GetStreamUri requests are sent concurrently; if any fails the others
// are canceled and no results are returned.
func GetStreamURIs(ctx context.Context, s *Session) ([]StreamResult, error) {
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]StreamResult, len(profiles))
	g, ctx := errgroup.WithContext(ctx)

	for i, profile := range profiles {
		i, profile := i, profile
		g.Go(func() error {
			uri, err := getStreamURI(ctx, s.media, profile.Token)
			if err != nil {
				return fmt.Errorf("stream uri of profile %s: %w", profile.Token, err)
			}
			results[i] = newStreamResult(profile, uri)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
