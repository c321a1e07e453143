package scheduler

// Job is the common shape every scheduled unit of work implements —
// one-shot jobs (health checks) and the per-account tick loop alike.
type Job interface {
	Name() string
	Run() error
}
