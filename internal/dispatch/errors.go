package dispatch

import "errors"

var (
	// ErrCampaignNotFound aborts a pass without rescheduling; the job
	// that carried it is dropped.
	ErrCampaignNotFound = errors.New("campaign not found")

	// Configuration errors abort a pass before any state is touched.
	ErrNoAccounts      = errors.New("campaign has no sender accounts")
	ErrNoTemplates     = errors.New("campaign has no templates")
	ErrNoImportSession = errors.New("campaign has no import session")

	// ErrTransportConfig marks an account whose transport cannot be
	// built from its credentials.
	ErrTransportConfig = errors.New("transport configuration invalid")
)

// ConfigError reports whether err is one of the non-retryable pass
// errors: re-running the job cannot succeed until an operator fixes the
// campaign.
func ConfigError(err error) bool {
	return errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrNoAccounts) ||
		errors.Is(err, ErrNoTemplates) ||
		errors.Is(err, ErrNoImportSession) ||
		errors.Is(err, ErrTransportConfig)
}
