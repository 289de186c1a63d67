package ports

// Frontend is a long-running surface of the daemon (SMTP intake, ops endpoint, scheduler)
type Frontend interface {
	// Name identifies the frontend in logs
	Name() string

	// Start begins serving in the background
	Start() error

	// Stop stops serving and releases the frontend's resources
	Stop() error
}
