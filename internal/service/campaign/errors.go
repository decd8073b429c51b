package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCampaignRunning   = errors.New("campaign is running")
	ErrNoSendableAccount = errors.New("campaign has no sendable account")
	ErrNoTemplates       = errors.New("campaign has no templates")
)
