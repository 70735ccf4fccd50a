package scheduler

import (
	"context"
	"time"

	"diaryface/internal/model"
)

// Sources are the callback channels the runtime delivers on. Nil channels
// never fire.
type Sources struct {
	Inbound      <-chan []byte
	SendFailed   <-chan error
	Connectivity <-chan bool
	Battery      <-chan model.BatteryStatus
	Ticks        <-chan time.Time
	PeerBattery  <-chan struct{}
}

// Run starts the scheduler and dispatches callbacks one at a time until ctx
// is done. now is the clock; nil means time.Now.
func (s *Scheduler) Run(ctx context.Context, src Sources, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.Start(now())

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-src.Inbound:
			s.HandleInbound(now(), msg)
		case err := <-src.SendFailed:
			s.HandleSendFailed(now(), err)
		case up := <-src.Connectivity:
			s.HandleConnection(now(), up)
		case b := <-src.Battery:
			s.HandleBattery(now(), b)
		case <-src.PeerBattery:
			s.RequestPeerBattery()
		case t := <-src.Ticks:
			s.HandleTick(t)
		}
	}
}
