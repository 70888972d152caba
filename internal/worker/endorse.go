package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"bilipod/internal/bili"
)

// endorse runs the configured side-effecting actions against the source
// video. Supported actions: "triple", "like", "coin|N", "favorite|MEDIA_ID".
func (o *Orchestrator) endorse(ctx context.Context, actions []string, v bili.Video) error {
	for _, action := range actions {
		switch {
		case action == "triple":
			if err := v.Triple(ctx); err != nil {
				return err
			}
		case action == "like":
			if err := v.Like(ctx); err != nil {
				return err
			}
		case strings.HasPrefix(action, "coin|"):
			count, err := strconv.Atoi(strings.TrimPrefix(action, "coin|"))
			if err != nil {
				return fmt.Errorf("invalid coin action %q: %w", action, err)
			}
			if err := v.Coin(ctx, count); err != nil {
				return err
			}
		case strings.HasPrefix(action, "favorite|"):
			mediaID, err := strconv.ParseInt(strings.TrimPrefix(action, "favorite|"), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid favorite action %q: %w", action, err)
			}
			if err := v.Favorite(ctx, mediaID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported endorse action %q", action)
		}
	}
	return nil
}
