package ws

import (
	"context"
	"log"

	"github.com/playhive/backend/internal/realtime"
	"github.com/playhive/backend/internal/store"
	"github.com/redis/go-redis/v9"
)

// StartPointsSubscriber listens on the points-changed channel and kicks the
// leaderboard publisher, so score mutations made anywhere (this process or
// another service) are reflected without waiting for the timer period.
func StartPointsSubscriber(ctx context.Context, rdb *redis.Client, pub *realtime.Publisher) {
	if rdb == nil {
		log.Println("[WS] Redis client not set; points event subscriber not started")
		return
	}

	pubsub := rdb.Subscribe(ctx, store.PointsChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Printf("[WS] %s subscriber started", store.PointsChannel)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				log.Printf("[WS] points event: %s", msg.Payload)
				pub.Notify()
			}
		}
	}()
}
