package esp

import (
	"testing"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func TestSenderForBuildsByProvider(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name    string
		account domain.Account
		wantErr bool
	}{
		{
			name: "sendgrid",
			account: domain.Account{
				ID:          "a1",
				Provider:    domain.ProviderSendGrid,
				Credentials: domain.Credentials{APIKey: "sg-key"},
			},
		},
		{
			name: "mailgun",
			account: domain.Account{
				ID:          "a2",
				Provider:    domain.ProviderMailgun,
				Credentials: domain.Credentials{APIKey: "mg-key", Domain: "mg.example.com"},
			},
		},
		{
			name: "smtp",
			account: domain.Account{
				ID:          "a3",
				Provider:    domain.ProviderSMTP,
				Credentials: domain.Credentials{SMTPHost: "smtp.example.com", SMTPUser: "u", SMTPPass: "p"},
			},
		},
		{
			name: "mailgun missing domain",
			account: domain.Account{
				ID:          "a4",
				Provider:    domain.ProviderMailgun,
				Credentials: domain.Credentials{APIKey: "mg-key"},
			},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			account: domain.Account{ID: "a5", Provider: "pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.SenderFor(&tt.account)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SenderFor: %v", err)
			}
			if s == nil {
				t.Fatal("nil sender")
			}
		})
	}
}

func TestSenderForCaches(t *testing.T) {
	r := NewResolver()
	a := &domain.Account{
		ID:          "a1",
		Provider:    domain.ProviderSendGrid,
		Credentials: domain.Credentials{APIKey: "k"},
	}

	first, err := r.SenderFor(a)
	if err != nil {
		t.Fatalf("SenderFor: %v", err)
	}
	second, err := r.SenderFor(a)
	if err != nil {
		t.Fatalf("SenderFor: %v", err)
	}
	if first != second {
		t.Error("expected cached sender on second resolve")
	}

	r.Invalidate("a1")
	third, err := r.SenderFor(a)
	if err != nil {
		t.Fatalf("SenderFor: %v", err)
	}
	if third == second {
		t.Error("expected rebuild after Invalidate")
	}
}
