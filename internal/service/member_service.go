package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/notify"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/redact"
	"github.com/vietguard/vietguard-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// MemberRegistry registers members in the scanning system.
type MemberRegistry interface {
	CreateMember(ctx context.Context, r scanapi.CreateMemberRequest) (json.RawMessage, error)
}

// MemberInfo is everything the gateway knows about one member.
type MemberInfo struct {
	Member        *domain.Member         `json:"member"`
	Verifications []domain.Verification  `json:"verifications"`
	Services      []domain.MemberService `json:"services"`
	Tasks         []domain.ScanTask      `json:"tasks"`
}

// MemberService onboards members through email one-time passwords.
type MemberService interface {
	// SendOTP creates a new attempt for email, registering the member on
	// first use, and emails the code.
	SendOTP(ctx context.Context, email string) error

	// VerifyOTP marks the newest unverified attempt matching code as
	// verified and attaches email to the caller's access log.
	VerifyOTP(ctx context.Context, email, code string, addr domain.ClientAddress) (*domain.Verification, error)

	// SubmitUserInfo stores profile details on a verified attempt.
	SubmitUserInfo(ctx context.Context, email, code string, info domain.UserInfo) (*domain.Verification, error)

	// CreateMemberWithServices registers a verified member in the scanning
	// system and records the products assigned to it.
	CreateMemberWithServices(ctx context.Context, email string, services []domain.ServiceType) (*MemberInfo, error)

	GetMemberInfo(ctx context.Context, email string) (*MemberInfo, error)
	ListVerifications(ctx context.Context) ([]domain.VerificationRecord, error)
}

type memberServiceImpl struct {
	members       store.MemberStore
	verifications store.VerificationStore
	tasks         store.TaskStore
	accessLogs    store.AccessLogStore
	registry      MemberRegistry
	mailer        notify.Dispatcher
	ttl           time.Duration
	bcryptCost    int
	logger        *slog.Logger

	now     func() time.Time
	newCode func() (string, error)
}

var _ MemberService = (*memberServiceImpl)(nil)

// NewMemberService creates a MemberService.
// It returns an error if any of the required dependencies are nil.
func NewMemberService(
	members store.MemberStore,
	verifications store.VerificationStore,
	tasks store.TaskStore,
	accessLogs store.AccessLogStore,
	registry MemberRegistry,
	mailer notify.Dispatcher,
	cfg config.OTPConfig,
	logger *slog.Logger,
) (MemberService, error) {
	switch {
	case members == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "members cannot be nil"}
	case verifications == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "verifications cannot be nil"}
	case tasks == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	case accessLogs == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "accessLogs cannot be nil"}
	case registry == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "registry cannot be nil"}
	case mailer == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "mailer cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &memberServiceImpl{
		members:       members,
		verifications: verifications,
		tasks:         tasks,
		accessLogs:    accessLogs,
		registry:      registry,
		mailer:        mailer,
		ttl:           ttl,
		bcryptCost:    cost,
		logger:        logger.With("component", "member_service"),
		now:           time.Now,
		newCode:       generateOTP,
	}, nil
}

// generateOTP returns a uniformly random six digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *memberServiceImpl) findOrCreateMember(ctx context.Context, email string) (*domain.Member, error) {
	m, err := s.members.GetByName(ctx, email)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, store.ErrMemberNotFound) {
		return nil, err
	}

	m, err = domain.NewMember(email)
	if err != nil {
		return nil, err
	}
	if err := s.members.Create(ctx, m); err != nil {
		if errors.Is(err, store.ErrMemberExists) {
			return s.members.GetByName(ctx, email)
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "registered new member", "member_id", m.ID)
	return m, nil
}

// SendOTP implements MemberService.
func (s *memberServiceImpl) SendOTP(ctx context.Context, email string) error {
	email, err := domain.NormalizeEmail(email)
	if err != nil {
		return err
	}

	m, err := s.findOrCreateMember(ctx, email)
	if err != nil {
		return NewServiceError("send_otp", "failed to load member", err)
	}

	code, err := s.newCode()
	if err != nil {
		return NewServiceError("send_otp", "failed to generate code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		return NewServiceError("send_otp", "failed to hash code", err)
	}

	v, err := domain.NewVerification(m.ID, string(hash), s.ttl)
	if err != nil {
		return err
	}
	if err := s.verifications.Create(ctx, v); err != nil {
		return NewServiceError("send_otp", "failed to save attempt", err)
	}

	msg, err := notify.OTPMessage(email, code, s.ttl)
	if err != nil {
		return NewServiceError("send_otp", "failed to build email", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to send otp email",
			"member_id", m.ID,
			"to", redact.Email(email),
			"error", redact.Error(err))
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	s.logger.InfoContext(ctx, "otp sent", "member_id", m.ID, "verification_id", v.ID)
	return nil
}

// matchAttempt returns the newest attempt with the given verified flag
// whose hash matches code.
func (s *memberServiceImpl) matchAttempt(
	ctx context.Context,
	m domain.Member,
	code string,
	verified bool,
) (*domain.Verification, error) {
	attempts, err := s.verifications.ListByMember(ctx, m.ID, &verified)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		if bcrypt.CompareHashAndPassword([]byte(attempts[i].CodeHash), []byte(code)) == nil {
			return &attempts[i], nil
		}
	}
	return nil, nil
}

func (s *memberServiceImpl) lookupMember(ctx context.Context, op, email string) (*domain.Member, string, error) {
	email, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	m, err := s.members.GetByName(ctx, email)
	if err != nil {
		return nil, "", NewServiceError(op, "failed to load member", err)
	}
	return m, email, nil
}

// VerifyOTP implements MemberService.
func (s *memberServiceImpl) VerifyOTP(
	ctx context.Context,
	email, code string,
	addr domain.ClientAddress,
) (*domain.Verification, error) {
	m, email, err := s.lookupMember(ctx, "verify_otp", email)
	if err != nil {
		return nil, err
	}

	v, err := s.matchAttempt(ctx, *m, code, false)
	if err != nil {
		return nil, NewServiceError("verify_otp", "failed to load attempts", err)
	}
	if v == nil {
		return nil, ErrInvalidOTP
	}

	now := s.now().UTC()
	if v.Expired(now) {
		return nil, ErrOTPExpired
	}

	applied, err := s.verifications.MarkVerified(ctx, v.ID, now)
	if err != nil {
		return nil, NewServiceError("verify_otp", "failed to mark attempt verified", err)
	}
	if !applied {
		return nil, ErrInvalidOTP
	}
	v.Verified = true
	v.VerifiedAt = &now

	if _, _, err := addr.Primary(); err == nil {
		if _, err := s.accessLogs.SetEmailIfEmpty(ctx, addr, email); err != nil {
			s.logger.WarnContext(ctx, "failed to attach email to access log",
				"member_id", m.ID,
				"error", redact.Error(err))
		}
	}

	s.logger.InfoContext(ctx, "otp verified", "member_id", m.ID, "verification_id", v.ID)
	return v, nil
}

// SubmitUserInfo implements MemberService.
func (s *memberServiceImpl) SubmitUserInfo(
	ctx context.Context,
	email, code string,
	info domain.UserInfo,
) (*domain.Verification, error) {
	m, _, err := s.lookupMember(ctx, "submit_user_info", email)
	if err != nil {
		return nil, err
	}

	v, err := s.matchAttempt(ctx, *m, code, true)
	if err != nil {
		return nil, NewServiceError("submit_user_info", "failed to load attempts", err)
	}
	if v == nil {
		return nil, ErrNotVerified
	}

	if err := s.verifications.UpdateUserInfo(ctx, v.ID, info); err != nil {
		return nil, NewServiceError("submit_user_info", "failed to save user info", err)
	}
	v.UserInfo = info
	return v, nil
}

func (s *memberServiceImpl) isVerified(ctx context.Context, m domain.Member) (bool, error) {
	verified := true
	attempts, err := s.verifications.ListByMember(ctx, m.ID, &verified)
	if err != nil {
		return false, err
	}
	return len(attempts) > 0, nil
}

// CreateMemberWithServices implements MemberService.
func (s *memberServiceImpl) CreateMemberWithServices(
	ctx context.Context,
	email string,
	services []domain.ServiceType,
) (*MemberInfo, error) {
	const op = "create_member_with_services"
	m, _, err := s.lookupMember(ctx, op, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.isVerified(ctx, *m)
	if err != nil {
		return nil, NewServiceError(op, "failed to load attempts", err)
	}
	if !ok {
		return nil, ErrNotVerified
	}
	if len(services) == 0 {
		services = []domain.ServiceType{domain.ServiceAppTotalGo}
	}

	if m.ExternalID == "" {
		s.registerExternally(ctx, m, services)
	}

	now := s.now().UTC()
	assignments := make([]domain.MemberService, 0, len(services))
	for _, st := range services {
		assignments = append(assignments, domain.MemberService{MemberID: m.ID, ServiceType: st, AssignedAt: now})
	}
	if err := s.members.AddServices(ctx, assignments); err != nil {
		return nil, NewServiceError(op, "failed to save services", err)
	}

	return s.GetMemberInfo(ctx, m.Name)
}

// registerExternally creates the member in the scanning system. Failures
// are logged; the local assignment still proceeds.
func (s *memberServiceImpl) registerExternally(ctx context.Context, m *domain.Member, services []domain.ServiceType) {
	req := scanapi.CreateMemberRequest{Name: m.ExternalName()}
	for _, st := range services {
		req.Services = append(req.Services, scanapi.ServiceAssignment{ServiceType: int(st)})
	}

	raw, err := s.registry.CreateMember(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to register member in scanning system",
			"member_id", m.ID,
			"error", redact.Error(err))
		return
	}
	externalID := scanapi.ExtractID(raw)
	if externalID == "" {
		s.logger.WarnContext(ctx, "scanning system returned no member id", "member_id", m.ID)
		return
	}
	if err := s.members.SetExternalID(ctx, m.ID, externalID); err != nil {
		s.logger.ErrorContext(ctx, "failed to store external member id",
			"member_id", m.ID,
			"error", redact.Error(err))
		return
	}
	m.ExternalID = externalID
}

// GetMemberInfo implements MemberService.
func (s *memberServiceImpl) GetMemberInfo(ctx context.Context, email string) (*MemberInfo, error) {
	const op = "get_member_info"
	m, _, err := s.lookupMember(ctx, op, email)
	if err != nil {
		return nil, err
	}

	verifications, err := s.verifications.ListByMember(ctx, m.ID, nil)
	if err != nil {
		return nil, NewServiceError(op, "failed to load attempts", err)
	}
	services, err := s.members.ListServices(ctx, m.ID)
	if err != nil {
		return nil, NewServiceError(op, "failed to load services", err)
	}
	tasks, err := s.tasks.ListByMember(ctx, m.ID)
	if err != nil {
		return nil, NewServiceError(op, "failed to load tasks", err)
	}

	return &MemberInfo{
		Member:        m,
		Verifications: orEmpty(verifications),
		Services:      orEmpty(services),
		Tasks:         orEmpty(tasks),
	}, nil
}

// ListVerifications implements MemberService.
func (s *memberServiceImpl) ListVerifications(ctx context.Context) ([]domain.VerificationRecord, error) {
	records, err := s.verifications.ListAll(ctx)
	if err != nil {
		return nil, NewServiceError("list_verifications", "failed to load attempts", err)
	}
	return orEmpty(records), nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
