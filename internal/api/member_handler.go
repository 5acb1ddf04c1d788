package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/api/shared"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/redact"
	"github.com/vietguard/vietguard-api/internal/service"
)

// SendOTPRequest is the body of POST /api/members/send-otp.
type SendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyOTPRequest is the body of POST /api/members/verify-otp. The
// addresses are optional; the caller's connection address is used when
// both are empty.
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp"   validate:"required,len=6,numeric"`
	IPv4  string `json:"ipv4"  validate:"omitempty,ipv4"`
	IPv6  string `json:"ipv6"  validate:"omitempty,ipv6"`
}

// VerifyOTPResponse reports a successful verification.
type VerifyOTPResponse struct {
	Message  string `json:"message"`
	Verified bool   `json:"verified"`
}

// SubmitUserInfoRequest is the body of POST /api/members/submit-info.
type SubmitUserInfoRequest struct {
	Email       string `json:"email"        validate:"required,email"`
	OTP         string `json:"otp"          validate:"required,len=6,numeric"`
	FullName    string `json:"full_name"    validate:"required,max=255"`
	CompanyName string `json:"company_name" validate:"required,max=255"`
	Phone       string `json:"phone"        validate:"omitempty,max=50"`
	Note        string `json:"note"         validate:"omitempty,max=2000"`
	FileName    string `json:"file_name"    validate:"omitempty,max=255"`
	FileSize    int64  `json:"file_size"    validate:"gte=0"`
}

// ServiceRequest names one product to assign.
type ServiceRequest struct {
	ServiceType int `json:"serviceType" validate:"required,gt=0"`
}

// CreateMemberWithServiceRequest is the body of POST /api/members/create-with-service.
type CreateMemberWithServiceRequest struct {
	Email    string           `json:"email"    validate:"required,email"`
	Services []ServiceRequest `json:"services" validate:"dive"`
}

// MemberInfoResponse wraps a member profile with a status message.
type MemberInfoResponse struct {
	Message string              `json:"message"`
	Data    *service.MemberInfo `json:"data"`
}

// CreateTaskResponse describes a newly submitted task.
type CreateTaskResponse struct {
	Message        string            `json:"message"`
	TaskID         uuid.UUID         `json:"taskId"`
	ExternalTaskID string            `json:"externalTaskId,omitempty"`
	Status         domain.TaskStatus `json:"status"`
}

// MemberHandler serves the OTP onboarding flow and member-owned tasks.
type MemberHandler struct {
	members        service.MemberService
	tasks          service.TaskService
	validator      *validator.Validate
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(
	members service.MemberService,
	tasks service.TaskService,
	maxUploadBytes int64,
	logger *slog.Logger,
) *MemberHandler {
	if members == nil || tasks == nil {
		panic("api: member handler requires member and task services")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberHandler{
		members:        members,
		tasks:          tasks,
		validator:      newValidator(),
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "member_handler")),
	}
}

// SendOTP handles POST /api/members/send-otp.
func (h *MemberHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	if err := h.members.SendOTP(r.Context(), req.Email); err != nil {
		HandleAPIError(w, r, err, "Failed to send OTP email")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, shared.MessageResponse{Message: "OTP sent successfully"})
}

// VerifyOTP handles POST /api/members/verify-otp.
func (h *MemberHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	addr := domain.ClientAddress{IPv4: req.IPv4, IPv6: req.IPv6}
	if addr.IPv4 == "" && addr.IPv6 == "" {
		addr = clientAddress(r)
	}

	if _, err := h.members.VerifyOTP(r.Context(), req.Email, req.OTP, addr); err != nil {
		HandleAPIError(w, r, err, "Failed to verify OTP")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, VerifyOTPResponse{
		Message:  "OTP verified successfully",
		Verified: true,
	})
}

// SubmitUserInfo handles POST /api/members/submit-info.
func (h *MemberHandler) SubmitUserInfo(w http.ResponseWriter, r *http.Request) {
	var req SubmitUserInfoRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	info := domain.UserInfo{
		FullName:    strings.TrimSpace(req.FullName),
		CompanyName: strings.TrimSpace(req.CompanyName),
		Phone:       strings.TrimSpace(req.Phone),
		Note:        req.Note,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
	}
	if _, err := h.members.SubmitUserInfo(r.Context(), req.Email, req.OTP, info); err != nil {
		HandleAPIError(w, r, err, "Failed to save user information")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, shared.MessageResponse{Message: "User information saved successfully"})
}

// CreateMemberWithService handles POST /api/members/create-with-service.
func (h *MemberHandler) CreateMemberWithService(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberWithServiceRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	services := make([]domain.ServiceType, 0, len(req.Services))
	for _, s := range req.Services {
		services = append(services, domain.ServiceType(s.ServiceType))
	}

	info, err := h.members.CreateMemberWithServices(r.Context(), req.Email, services)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create member")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, MemberInfoResponse{
		Message: "Member created successfully with services",
		Data:    info,
	})
}

// CreateTask handles POST /api/members/tasks. The multipart form carries the
// member's email as memberName, an optional clientIp and the file.
func (h *MemberHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	upload, err := parseUpload(w, r, h.maxUploadBytes)
	if err != nil {
		handleUploadError(w, r, err)
		return
	}
	defer upload.Close()

	if err := h.validator.Var(upload.MemberName, "required,email"); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid memberName: invalid email format", err)
		return
	}

	task, err := h.tasks.CreateTask(r.Context(), upload.MemberName, upload.Upload)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	h.logger.InfoContext(r.Context(), "task created",
		"task_id", task.ID,
		"member", redact.Email(upload.MemberName),
		"status", task.Status)

	shared.RespondWithJSON(w, r, http.StatusCreated, CreateTaskResponse{
		Message:        "Task created successfully",
		TaskID:         task.ID,
		ExternalTaskID: task.ExternalID,
		Status:         task.Status,
	})
}

// CanScan handles GET /api/members/{email}/can-scan.
func (h *MemberHandler) CanScan(w http.ResponseWriter, r *http.Request) {
	email, err := getPathParam(r, "email")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	admission, err := h.tasks.CanScan(r.Context(), email)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to check scan quota")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, admission)
}

// ListVerifications handles GET /api/members/verifications.
func (h *MemberHandler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	records, err := h.members.ListVerifications(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list verifications")
		return
	}
	if records == nil {
		records = []domain.VerificationRecord{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, records)
}

// GetMemberInfo handles GET /api/members/{email}.
func (h *MemberHandler) GetMemberInfo(w http.ResponseWriter, r *http.Request) {
	email, err := getPathParam(r, "email")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	info, err := h.members.GetMemberInfo(r.Context(), email)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load member")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, info)
}
