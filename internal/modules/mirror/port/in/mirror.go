package in

import (
	"context"

	"minesync/internal/modules/mirror/dto"
)

// Usecase is one tab's session mirror.
type Usecase interface {
	Run(ctx context.Context) error
	Close() error
	Mount(ctx context.Context) (dto.ViewOutput, error)
	Start(ctx context.Context) (dto.ViewOutput, error)
	Pause(ctx context.Context) (dto.ViewOutput, error)
	Resume(ctx context.Context) (dto.ViewOutput, error)
	TogglePause(ctx context.Context) (dto.ViewOutput, error)
	Stop(ctx context.Context) (dto.ViewOutput, error)
	View() dto.ViewOutput
	Events() <-chan dto.EventOutput
}
