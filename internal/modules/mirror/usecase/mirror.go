package usecase

import (
	"context"

	"minesync/internal/modules/mirror/domain"
	mirrordto "minesync/internal/modules/mirror/dto"
	mirrorin "minesync/internal/modules/mirror/port/in"
	"minesync/internal/modules/mirror/service"
)

type Interactor struct {
	svc    *service.Mirror
	events chan mirrordto.EventOutput
}

// NewInteractor adapts a mirror to the tab surface. Events are translated until the mirror
// is closed.
func NewInteractor(svc *service.Mirror) mirrorin.Usecase {
	i := &Interactor{svc: svc, events: make(chan mirrordto.EventOutput, 64)}
	go i.forward()
	return i
}

func (i *Interactor) Run(ctx context.Context) error {
	return i.svc.Run(ctx)
}

func (i *Interactor) Close() error {
	return i.svc.Close()
}

func (i *Interactor) Mount(ctx context.Context) (mirrordto.ViewOutput, error) {
	snapshot, err := i.svc.Mount(ctx)
	return i.view(snapshot), err
}

func (i *Interactor) Start(ctx context.Context) (mirrordto.ViewOutput, error) {
	snapshot, err := i.svc.Start(ctx)
	return i.view(snapshot), err
}

func (i *Interactor) Pause(ctx context.Context) (mirrordto.ViewOutput, error) {
	snapshot, err := i.svc.Pause(ctx)
	return i.view(snapshot), err
}

func (i *Interactor) Resume(ctx context.Context) (mirrordto.ViewOutput, error) {
	snapshot, err := i.svc.Resume(ctx)
	return i.view(snapshot), err
}

func (i *Interactor) TogglePause(ctx context.Context) (mirrordto.ViewOutput, error) {
	snapshot, err := i.svc.TogglePause(ctx)
	return i.view(snapshot), err
}

func (i *Interactor) Stop(ctx context.Context) (mirrordto.ViewOutput, error) {
	snapshot, err := i.svc.Stop(ctx)
	return i.view(snapshot), err
}

func (i *Interactor) View() mirrordto.ViewOutput {
	return i.view(i.svc.Snapshot())
}

func (i *Interactor) Events() <-chan mirrordto.EventOutput {
	return i.events
}

func (i *Interactor) forward() {
	defer close(i.events)
	for event := range i.svc.Events() {
		out := mirrordto.EventOutput{View: i.view(event.Snapshot)}
		if event.Notice != nil {
			out.Notice = &mirrordto.NoticeOutput{
				Level:   string(event.Notice.Level),
				Title:   event.Notice.Title,
				Message: event.Notice.Message,
			}
		}
		select {
		case i.events <- out:
		default:
		}
	}
}

func (i *Interactor) view(snapshot domain.Snapshot) mirrordto.ViewOutput {
	earned, daily := i.svc.Earnings(snapshot)
	out := mirrordto.ViewOutput{
		Snapshot: mirrordto.SnapshotOutput{
			SessionID:      snapshot.ID(),
			Status:         string(snapshot.Status),
			StartTimeMs:    snapshot.StartTime,
			Duration:       snapshot.Duration,
			PausedDuration: snapshot.PausedDuration,
		},
		SessionEarnings: earned.String(),
		ProjectedDaily:  daily.String(),
		BusConnected:    i.svc.BusConnected(),
	}
	if snapshot.PausedAt != nil {
		out.Snapshot.PausedAtMs = *snapshot.PausedAt
	}
	return out
}
