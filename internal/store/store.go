package store

import "github.com/yourorg/trainlink/pkg/types"

type Store interface {
	StartRun(runKey string, cardID, scenarioID, startTime int64, archivePath string) (*types.Run, error)
	GetRun(id string) (*types.Run, error)
	FindRunByKey(runKey string) (*types.Run, error)
	UpdateRunStatus(id, status string) error
	ListRuns() ([]types.Run, error)
	DeleteRun(id string) error

	AddSkipped(path, reason string) error
	IsSkipped(path string) (bool, error)
	ListSkipped() ([]types.SkippedFile, error)

	Close() error
}
