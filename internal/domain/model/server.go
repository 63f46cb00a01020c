package model

import "time"

type ServerStatus string

const (
	ServerStatusAvailable   ServerStatus = "available"
	ServerStatusUnavailable ServerStatus = "unavailable"
)

// ServerTypeGPU is the worker class that runs the document pipeline.
const ServerTypeGPU = "gpu"

// WorkerServer is one row in the server registry. The worker itself updates
// it via heartbeat; the health monitor marks it unavailable when heartbeats
// stop.
type WorkerServer struct {
	ServerID           string
	ServerType         string
	Status             ServerStatus
	CurrentLoad        int
	MaxConcurrentTasks int
	LastHeartbeat      time.Time
}

// HasCapacity reports whether the scheduler may dispatch another task here.
func (s *WorkerServer) HasCapacity() bool {
	return s.Status == ServerStatusAvailable && s.CurrentLoad < s.MaxConcurrentTasks
}
