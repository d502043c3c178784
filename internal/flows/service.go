package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.MFA.VerifyCode != nil || s.deps.ClientKey.HashKey != nil
}

func (s Service) BeginEnrollment(ctx context.Context, userID, accountLabel string) (*MFAEnrollment, error) {
	return RunBeginEnrollment(ctx, userID, accountLabel, s.deps.MFA)
}

func (s Service) ConfirmEnrollment(ctx context.Context, userID, tenantID, secret, code string) (*MFAEnrollmentResult, error) {
	return RunConfirmEnrollment(ctx, userID, tenantID, secret, code, s.deps.MFA)
}

func (s Service) VerifyMFA(ctx context.Context, userID, token string) (bool, error) {
	return RunVerifyMFA(ctx, userID, token, s.deps.MFA)
}

func (s Service) DisableMFA(ctx context.Context, userID, token string) error {
	return RunDisableMFA(ctx, userID, token, s.deps.MFA)
}

func (s Service) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	return RunRegenerateBackupCodes(ctx, userID, totpCode, s.deps.MFA)
}

func (s Service) MFAStatus(ctx context.Context, userID string) (MFAStatus, error) {
	return RunMFAStatus(ctx, userID, s.deps.MFA)
}

func (s Service) CreateClientKey(ctx context.Context, req ClientKeyCreateRequest) (*ClientKeyCreated, error) {
	return RunCreateClientKey(ctx, req, s.deps.ClientKey)
}

func (s Service) VerifyClientKey(ctx context.Context, plaintext string) (ClientKeyVerification, error) {
	return RunVerifyClientKey(ctx, plaintext, s.deps.ClientKey)
}

func (s Service) RevokeClientKey(ctx context.Context, keyID, tenantID string) (bool, error) {
	return RunRevokeClientKey(ctx, keyID, tenantID, s.deps.ClientKey)
}

func (s Service) ListClientKeys(ctx context.Context, tenantID string) ([]ClientKeyRecord, error) {
	return RunListClientKeys(ctx, tenantID, s.deps.ClientKey)
}

func (s Service) AuthorizeClientKey(ctx context.Context, plaintext, origin, path string) (*ClientKeyAuthorization, error) {
	return RunAuthorizeClientKey(ctx, plaintext, origin, path, s.deps.ClientKey)
}
