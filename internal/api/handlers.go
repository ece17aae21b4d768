package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"klimatik/internal/booking"
	"klimatik/internal/database"
	"klimatik/internal/events"
	"klimatik/internal/models"
	"klimatik/internal/schedule"
)

const dateLayout = "2006-01-02"

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.App.Version,
	})
}

// handleSlots отдает сетку слотов; с ?date= — вместе с занятостью.
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeJSON(w, http.StatusOK, map[string]any{"slots": schedule.Slots()})
		return
	}

	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots, err := s.booking.DaySchedule(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": dateStr, "slots": slots})
}

// handleCalendar отдает окно бронирования: 14 последовательных дат.
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	window := schedule.Window(time.Now())
	dates := make([]string, 0, len(window))
	for _, d := range window {
		dates = append(dates, d.Format(dateLayout))
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind != "" && kind != models.KindRental && kind != models.KindService {
		writeError(w, http.StatusBadRequest, "unknown kind")
		return
	}

	items, err := s.db.GetActiveCatalog(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleContent: GET — публичное чтение раздела, PUT — админское обновление.
func (s *HTTPServer) handleContent(w http.ResponseWriter, r *http.Request) {
	section := strings.TrimPrefix(r.URL.Path, "/api/v1/content/")
	section = strings.TrimSpace(section)
	if section == "" || strings.Contains(section, "/") {
		writeError(w, http.StatusBadRequest, "section is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		content, err := s.db.GetContent(r.Context(), section)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "section not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load content")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content.Payload)
	case http.MethodPut:
		s.requireAdmin("write:content", func(w http.ResponseWriter, r *http.Request, _ string) {
			var payload json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if err := s.db.UpsertContent(r.Context(), section, payload); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to save content")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"section": section})
		})(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type reviewRequest struct {
	Name   string `json:"name"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

func (s *HTTPServer) handleReviews(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		reviews, err := s.db.ListReviews(r.Context(), true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load reviews")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
	case http.MethodPost:
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Name == "" || req.Text == "" {
			writeError(w, http.StatusBadRequest, "name and text are required")
			return
		}
		if req.Rating < 1 || req.Rating > 5 {
			writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
			return
		}

		review := &models.Review{Name: req.Name, Rating: req.Rating, Text: req.Text}
		if err := s.db.CreateReview(r.Context(), review); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save review")
			return
		}
		if s.bus != nil {
			payload := events.ReviewEventPayload{
				ReviewID: review.ID,
				Name:     review.Name,
				Rating:   review.Rating,
				Text:     review.Text,
			}
			if err := s.bus.PublishJSON(events.EventReviewSubmitted, payload); err != nil {
				s.logger.Error().Err(err).Int64("review_id", review.ID).Msg("failed to publish review event")
			}
		}
		writeJSON(w, http.StatusCreated, review)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleReviewActions: POST /api/v1/reviews/{id}/approve — модерация.
func (s *HTTPServer) handleReviewActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reviews/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "approve" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	s.requireAdmin("write:reviews", func(w http.ResponseWriter, r *http.Request, _ string) {
		if err := s.db.ApproveReview(r.Context(), id); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "review not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to approve review")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "approved": true})
	})(w, r)
}

type createDraftRequest struct {
	Kind     string `json:"kind"`
	ItemID   int64  `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

func (s *HTTPServer) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	draft, err := s.booking.StartDraft(r.Context(), req.Kind, req.ItemID, req.Quantity)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

type draftPatchRequest struct {
	Date     *string          `json:"date"`
	TimeSlot *string          `json:"time_slot"`
	Duration *string          `json:"duration"`
	Quantity *int64           `json:"quantity"`
	Contact  *models.Contact  `json:"contact"`
	Location *models.Location `json:"location"`
}

// handleDraft: GET/PATCH /drafts/{session}, POST /drafts/{session}/submit.
func (s *HTTPServer) handleDraft(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/drafts/")
	parts := strings.Split(rest, "/")

	sessionID := strings.TrimSpace(parts[0])
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if len(parts) == 2 && parts[1] == "submit" {
		s.handleSubmit(w, r, sessionID)
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		draft, err := s.booking.GetDraft(r.Context(), sessionID)
		if err != nil {
			s.writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	case http.MethodPut, http.MethodPatch:
		var req draftPatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		patch := booking.DraftPatch{
			TimeSlot: req.TimeSlot,
			Duration: req.Duration,
			Quantity: req.Quantity,
			Contact:  req.Contact,
			Location: req.Location,
		}
		if req.Date != nil {
			date, err := time.Parse(dateLayout, *req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
				return
			}
			patch.Date = &date
		}

		draft, err := s.booking.UpdateDraft(r.Context(), sessionID, patch)
		if err != nil {
			s.writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.allowSubmission(r) {
		writeError(w, http.StatusTooManyRequests, "too many submissions, try later")
		return
	}

	order, err := s.booking.Submit(r.Context(), sessionID, r.Header.Get("Idempotency-Key"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

type createOrderRequest struct {
	Kind     string           `json:"kind"`
	ItemID   int64            `json:"item_id"`
	Date     string           `json:"date"`
	TimeSlot string           `json:"time_slot"`
	Duration string           `json:"duration"`
	Quantity int64            `json:"quantity"`
	Contact  models.Contact   `json:"contact"`
	Location *models.Location `json:"location"`
}

// handleOrders: POST — одношаговое оформление, GET — админский список.
func (s *HTTPServer) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.allowSubmission(r) {
			writeError(w, http.StatusTooManyRequests, "too many submissions, try later")
			return
		}

		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		draft := &models.BookingDraft{
			Kind:     req.Kind,
			ItemID:   req.ItemID,
			TimeSlot: req.TimeSlot,
			Duration: req.Duration,
			Quantity: req.Quantity,
			Contact:  req.Contact,
			Location: req.Location,
		}
		if req.Date != "" {
			date, err := time.Parse(dateLayout, req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
				return
			}
			draft.Date = date
		}

		order, err := s.booking.CreateOrder(r.Context(), draft, r.Header.Get("Idempotency-Key"))
		if err != nil {
			s.writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	case http.MethodGet:
		s.requireAdmin("read:orders", func(w http.ResponseWriter, r *http.Request, _ string) {
			orders, err := s.db.ListOrders(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to load orders")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
		})(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleOrderSubpath разбирает /orders/{id}[...], /orders/phone/{phone}
// и /orders/export.
func (s *HTTPServer) handleOrderSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/")
	parts := strings.Split(rest, "/")

	switch parts[0] {
	case "phone":
		if len(parts) != 2 {
			writeError(w, http.StatusBadRequest, "phone is required")
			return
		}
		s.handleTrack(w, r, parts[1])
		return
	case "export":
		if len(parts) != 1 {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.requireAdmin("read:orders", s.handleExport)(w, r)
		return
	}

	orderID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			// Страница "заказ оформлен" открывается клиентом сразу после
			// создания, поэтому карточка заказа доступна без ключа.
			order, err := s.db.GetOrder(r.Context(), orderID)
			if err != nil {
				s.writeBookingError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, order)
		case http.MethodPatch, http.MethodPut:
			s.handleStatusChange(w, r, orderID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(parts) == 2 && parts[1] == "status":
		s.handleStatusChange(w, r, orderID)
	case len(parts) == 2 && parts[1] == "assign":
		s.handleAssign(w, r, orderID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleTrack — поиск заказов по телефону для страницы отслеживания.
// Пустая выдача — явный 404 с телом, а не ошибка сервера.
func (s *HTTPServer) handleTrack(w http.ResponseWriter, r *http.Request, phone string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	phone = strings.TrimSpace(phone)
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	result, err := s.booking.Track(r.Context(), phone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load orders")
		return
	}
	if !result.Found {
		writeJSON(w, http.StatusNotFound, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statusChangeRequest struct {
	Status string `json:"status"`
}

// handleStatusChange принимает смену статуса от админа (API-ключ)
// либо от сотрудника (JWT, только свои заказы).
func (s *HTTPServer) handleStatusChange(w http.ResponseWriter, r *http.Request, orderID int64) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var actor booking.Actor
	if client, adminErr := s.admin.Check(r, "write:orders"); adminErr == nil {
		actor = booking.Actor{Name: client}
	} else if techID, techErr := s.technicianFromRequest(r); techErr == nil {
		actor = booking.Actor{TechnicianID: techID}
	} else {
		writeError(w, http.StatusUnauthorized, "admin key or technician token required")
		return
	}

	order, err := s.booking.ChangeStatus(r.Context(), orderID, status, actor)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type assignRequest struct {
	TechnicianID int64 `json:"technician_id"`
}

func (s *HTTPServer) handleAssign(w http.ResponseWriter, r *http.Request, orderID int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.requireAdmin("write:orders", func(w http.ResponseWriter, r *http.Request, _ string) {
		var req assignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.TechnicianID == 0 {
			writeError(w, http.StatusBadRequest, "technician_id is required")
			return
		}

		if _, err := s.db.GetTechnicianByID(r.Context(), req.TechnicianID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "technician not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load technician")
			return
		}

		if err := s.db.AssignTechnician(r.Context(), orderID, req.TechnicianID); err != nil {
			s.writeBookingError(w, err)
			return
		}

		order, err := s.db.GetOrder(r.Context(), orderID)
		if err != nil {
			s.writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	})(w, r)
}

// handleExport выгружает заказы за период в xlsx.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now()
	start := now.AddDate(0, -models.DefaultExportRangeMonthsBefore, 0)
	end := now.AddDate(0, models.DefaultExportRangeMonthsAfter, 0)

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		start = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		end = parsed
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	filePath, err := s.exporter.OrdersToExcel(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(filePath)))
	http.ServeFile(w, r, filePath)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	tech, err := AuthenticateTechnician(r.Context(), s.db, req.Login, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	pair, err := s.tokens.Issue(tech.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	techID, err := s.tokens.Parse(req.RefreshToken, "refresh")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	// Заблокированный сотрудник не продлевает сессию.
	tech, err := s.db.GetTechnicianByID(r.Context(), techID)
	if err != nil || !tech.IsActive {
		writeError(w, http.StatusUnauthorized, "technician is not active")
		return
	}

	pair, err := s.tokens.Issue(techID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *HTTPServer) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	techID, ok := technicianFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := s.booking.TechnicianOrders(r.Context(), techID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// allowSubmission ограничивает частоту оформлений по IP клиента.
// При недоступном хранилище лимитов оформление не блокируется.
func (s *HTTPServer) allowSubmission(r *http.Request) bool {
	if s.drafts == nil {
		return true
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}

	allowed, err := s.drafts.CheckRateLimit(r.Context(), "submit:"+host,
		models.RateLimitRequests, models.RateLimitWindow*time.Second)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
		return true
	}
	return allowed
}

// writeBookingError переводит доменные ошибки в HTTP-статусы.
func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrScheduleIncomplete),
		errors.Is(err, booking.ErrContactIncomplete),
		errors.Is(err, booking.ErrInvalidSlot),
		errors.Is(err, booking.ErrDateOutsideWindow),
		errors.Is(err, booking.ErrUnknownDuration):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrUnknownItem),
		errors.Is(err, booking.ErrDraftNotFound),
		errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrTransitionDenied),
		errors.Is(err, database.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrTechnicianMismatch):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
