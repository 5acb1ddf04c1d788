package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/vietguard/vietguard-api/internal/api/shared"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
)

// xlsxContentType is the media type of the usage spreadsheet.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CreateExternalMemberRequest is the body of POST /api/external/members.
type CreateExternalMemberRequest struct {
	Name     string           `json:"name"     validate:"required,max=255"`
	Services []ServiceRequest `json:"services" validate:"required,dive"`
}

// AssignServicesRequest is the body of POST /api/external/members/services.
type AssignServicesRequest struct {
	ID       int              `json:"id"       validate:"required,gt=0"`
	DealerID *int             `json:"dealerId" validate:"omitempty,gt=0"`
	Services []ServiceRequest `json:"services" validate:"required,dive"`
}

// ListMembersQuery pages through the scanner's members.
type ListMembersQuery struct {
	Page       int    `json:"page"       validate:"gte=1"`
	PageSize   int    `json:"pageSize"   validate:"gte=1,lte=100"`
	SortOrder  string `json:"sortOrder"  validate:"omitempty,oneof=Asc Desc"`
	SortBy     string `json:"sortBy"     validate:"omitempty,oneof=MemberName DealerName CreatedAt"`
	MemberName string `json:"memberName" validate:"max=255"`
	DealerName string `json:"dealerName" validate:"max=255"`
}

// ExternalHandler relays member management calls to the scanning system.
type ExternalHandler struct {
	scanner   ScanProxy
	validator *validator.Validate
	logger    *slog.Logger
}

// NewExternalHandler creates a new ExternalHandler.
func NewExternalHandler(scanner ScanProxy, logger *slog.Logger) *ExternalHandler {
	if scanner == nil {
		panic("api: external handler requires a scanner")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalHandler{
		scanner:   scanner,
		validator: newValidator(),
		logger:    logger.With(slog.String("component", "external_handler")),
	}
}

func toAssignments(services []ServiceRequest) []scanapi.ServiceAssignment {
	out := make([]scanapi.ServiceAssignment, 0, len(services))
	for _, s := range services {
		out = append(out, scanapi.ServiceAssignment{ServiceType: s.ServiceType})
	}
	return out
}

// CreateMember handles POST /api/external/members.
func (h *ExternalHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateExternalMemberRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	body, err := h.scanner.CreateMember(r.Context(), scanapi.CreateMemberRequest{
		Name:     req.Name,
		Services: toAssignments(req.Services),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create member")
		return
	}
	shared.RespondWithRawJSON(w, r, http.StatusCreated, body)
}

// parseListMembersQuery applies the scanner's defaults to absent values.
func parseListMembersQuery(r *http.Request) (ListMembersQuery, bool) {
	values := r.URL.Query()
	q := ListMembersQuery{
		Page:       1,
		PageSize:   10,
		SortOrder:  values.Get("sortOrder"),
		SortBy:     values.Get("sortBy"),
		MemberName: values.Get("memberName"),
		DealerName: values.Get("dealerName"),
	}
	for key, dst := range map[string]*int{"page": &q.Page, "pageSize": &q.PageSize} {
		raw := values.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, false
		}
		*dst = n
	}
	return q, true
}

// ListMembers handles GET /api/external/members.
func (h *ExternalHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	q, ok := parseListMembersQuery(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "page and pageSize must be integers")
		return
	}
	if err := h.validator.Struct(q); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	forwarded := r.URL.Query()
	forwarded.Set("page", strconv.Itoa(q.Page))
	forwarded.Set("pageSize", strconv.Itoa(q.PageSize))

	body, err := h.scanner.ListMembers(r.Context(), forwarded)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list members")
		return
	}
	shared.RespondWithRawJSON(w, r, http.StatusOK, body)
}

// AssignServices handles POST /api/external/members/services.
func (h *ExternalHandler) AssignServices(w http.ResponseWriter, r *http.Request) {
	var req AssignServicesRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	body, err := h.scanner.AssignServices(r.Context(), scanapi.AssignServicesRequest{
		ID:       req.ID,
		DealerID: req.DealerID,
		Services: toAssignments(req.Services),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to assign services")
		return
	}
	shared.RespondWithRawJSON(w, r, http.StatusOK, body)
}

// ExportServiceUsageLogs handles GET /api/dealers/export-service-usage-logs.
func (h *ExternalHandler) ExportServiceUsageLogs(w http.ResponseWriter, r *http.Request) {
	data, err := h.scanner.ExportServiceUsageLogs(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to export service usage logs")
		return
	}
	shared.RespondWithFile(w, r, xlsxContentType, "service-usage-logs.xlsx", data)
}
