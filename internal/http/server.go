package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bugema/portal/internal/auth"
	"bugema/portal/internal/config"
	"bugema/portal/internal/crypto"
	"bugema/portal/internal/mailer"
	"bugema/portal/internal/model"
	"bugema/portal/internal/otp"
	"bugema/portal/internal/repository"
)

const recentLimit = 5

type Server struct {
	cfg    config.Config
	store  *repository.Store
	codes  *otp.CodeStore
	mailer mailer.Mailer
}

func NewServer(cfg config.Config, store *repository.Store, codes *otp.CodeStore, mail mailer.Mailer) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		codes:  codes,
		mailer: mail,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/admin/login", s.handleAdminLogin)
		r.Post("/admin/verify", s.handleAdminVerify)
		r.Post("/admin/logout", s.handleLogout(auth.RoleAdmin))
		r.With(s.requireSession(auth.RoleAdmin)).Get("/admin/stats", s.handleAdminStats)

		// Department listing is open: the HOD and student portals need it
		// to populate their select-department pages before any login.
		r.Get("/departments", s.handleListDepartments)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession(auth.RoleAdmin))
			r.Post("/departments", s.handleCreateDepartment)
			r.Put("/departments/{id}", s.handleUpdateDepartment)
			r.Delete("/departments/{id}", s.handleDeleteDepartment)
			r.Get("/hods", s.handleListHODs)
			r.Post("/hods", s.handleCreateHOD)
			r.Delete("/hods/{id}", s.handleDeleteHOD)
		})

		r.Post("/hod/login", s.handleHODLogin)
		r.Post("/hod/verify", s.handleHODVerify)
		r.Post("/hod/logout", s.handleLogout(auth.RoleHOD))
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession(auth.RoleHOD))
			r.Get("/hod/stats", s.handleHODStats)
			r.Get("/hod/courses", s.handleListCourses)
			r.Post("/hod/courses", s.handleCreateCourse)
			r.Put("/hod/courses/{id}", s.handleUpdateCourse)
			r.Delete("/hod/courses/{id}", s.handleDeleteCourse)
		})

		r.Post("/student/register", s.handleStudentRegister)
		r.Post("/student/login", s.handleStudentLogin)
		r.Post("/student/verify", s.handleStudentVerify)
		r.Post("/student/logout", s.handleLogout(auth.RoleStudent))
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession(auth.RoleStudent))
			r.Get("/student/stats", s.handleStudentStats)
			r.Get("/student/courses", s.handleStudentCourses)
			r.Get("/student/search", s.handleStudentSearch)
		})
	})

	// Portal page namespaces. Each role's entry paths stay open so the
	// gate's redirects have somewhere to land; everything else requires a
	// valid session cookie for that role.
	r.Route("/admin", func(r chi.Router) {
		r.Get("/login", s.handleEntryPage("admin-login"))
		r.Group(func(r chi.Router) {
			r.Use(s.portalGate(auth.RoleAdmin, "/admin/login"))
			r.Get("/dashboard", s.handleAdminStats)
			r.Get("/departments", s.handleListDepartments)
			r.Get("/hods", s.handleListHODs)
		})
	})
	r.Route("/hod", func(r chi.Router) {
		r.Get("/login", s.handleEntryPage("hod-login"))
		r.Get("/select-department", s.handleEntryPage("hod-select-department"))
		r.Group(func(r chi.Router) {
			r.Use(s.portalGate(auth.RoleHOD, "/hod/select-department"))
			r.Get("/dashboard", s.handleHODStats)
			r.Get("/courses", s.handleListCourses)
		})
	})
	r.Route("/student", func(r chi.Router) {
		r.Get("/auth", s.handleEntryPage("student-auth"))
		r.Get("/select-department", s.handleEntryPage("student-select-department"))
		r.Group(func(r chi.Router) {
			r.Use(s.portalGate(auth.RoleStudent, "/student/select-department"))
			r.Get("/dashboard", s.handleStudentStats)
			r.Get("/courses", s.handleStudentCourses)
			r.Get("/search", s.handleStudentSearch)
		})
	})

	return r
}

type adminLoginRequest struct {
	Email     string `json:"email"`
	AdminCode string `json:"adminCode"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.AdminCode == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	if req.AdminCode != s.cfg.AdminAccessCode {
		writeError(w, http.StatusUnauthorized, "invalid_admin_code")
		return
	}

	// First login with a valid access code bootstraps the admin record.
	_, err := s.store.GetAdminByEmail(r.Context(), req.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		admin := model.Admin{
			ID:        uuid.NewString(),
			Email:     req.Email,
			Name:      "Admin",
			CreatedAt: time.Now().UTC(),
		}
		err = s.store.CreateAdmin(r.Context(), admin)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if errCode, err := s.dispatchVerificationCode(r.Context(), auth.RoleAdmin, req.Email); errCode != "" {
		log.Printf("admin login dispatch failed for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, errCode)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type verifyRequest struct {
	Email        string `json:"email"`
	Code         string `json:"code"`
	DepartmentID string `json:"departmentId"`
}

func (s *Server) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	if err := s.codes.Redeem(r.Context(), auth.RoleAdmin, req.Email, req.Code); err != nil {
		if errors.Is(err, otp.ErrInvalidOrExpiredCode) {
			writeError(w, http.StatusUnauthorized, "invalid_or_expired_code")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.issueSession(w, auth.SessionClaims{Email: req.Email, Role: auth.RoleAdmin}); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type scopedLoginRequest struct {
	Email        string `json:"email"`
	DepartmentID string `json:"departmentId"`
}

func (s *Server) handleHODLogin(w http.ResponseWriter, r *http.Request) {
	var req scopedLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.DepartmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	if _, err := s.store.GetHODByEmailAndDepartment(r.Context(), req.Email, req.DepartmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if errCode, err := s.dispatchVerificationCode(r.Context(), auth.RoleHOD, req.Email); errCode != "" {
		log.Printf("hod login dispatch failed for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, errCode)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHODVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Code == "" || req.DepartmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	// Resolve the identity before redeeming so a mismatch does not burn a
	// still-valid code.
	hod, err := s.store.GetHODByEmailAndDepartment(r.Context(), req.Email, req.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.codes.Redeem(r.Context(), auth.RoleHOD, req.Email, req.Code); err != nil {
		if errors.Is(err, otp.ErrInvalidOrExpiredCode) {
			writeError(w, http.StatusUnauthorized, "invalid_or_expired_code")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	claims := auth.SessionClaims{
		Email:        hod.Email,
		Role:         auth.RoleHOD,
		DepartmentID: hod.DepartmentID,
	}
	if err := s.issueSession(w, claims); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	var req scopedLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.DepartmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	if _, err := s.store.GetStudentByEmailAndDepartment(r.Context(), req.Email, req.DepartmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if errCode, err := s.dispatchVerificationCode(r.Context(), auth.RoleStudent, req.Email); errCode != "" {
		log.Printf("student login dispatch failed for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, errCode)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStudentVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Code == "" || req.DepartmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	student, err := s.store.GetStudentByEmailAndDepartment(r.Context(), req.Email, req.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.codes.Redeem(r.Context(), auth.RoleStudent, req.Email, req.Code); err != nil {
		if errors.Is(err, otp.ErrInvalidOrExpiredCode) {
			writeError(w, http.StatusUnauthorized, "invalid_or_expired_code")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	claims := auth.SessionClaims{
		Email:        student.Email,
		Role:         auth.RoleStudent,
		DepartmentID: student.DepartmentID,
		StudentID:    student.ID,
	}
	if err := s.issueSession(w, claims); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogout(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		clearSessionCookie(w, sessionCookieName(role), s.secureCookies())
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

type studentRegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	StudentNumber string `json:"studentNumber"`
	Phone         string `json:"phone"`
	YearOfStudy   int    `json:"yearOfStudy"`
	DepartmentID  string `json:"departmentId"`
}

func (s *Server) handleStudentRegister(w http.ResponseWriter, r *http.Request) {
	var req studentRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.StudentNumber = strings.TrimSpace(req.StudentNumber)
	if req.Name == "" || req.Email == "" || req.StudentNumber == "" || req.DepartmentID == "" || req.YearOfStudy < 1 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if _, err := s.store.GetDepartment(r.Context(), req.DepartmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, "department_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	student := model.Student{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Email:         req.Email,
		StudentNumber: req.StudentNumber,
		YearOfStudy:   req.YearOfStudy,
		DepartmentID:  req.DepartmentID,
		CreatedAt:     time.Now().UTC(),
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		student.Phone = &phone
	}

	if err := s.store.CreateStudent(r.Context(), student); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusBadRequest, "student_already_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"student": mapStudent(student),
	})
}

func (s *Server) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := s.store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	result := make([]departmentSummary, 0, len(departments))
	for _, dept := range departments {
		result = append(result, mapDepartment(dept))
	}
	writeJSON(w, http.StatusOK, result)
}

type departmentRequest struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description *string `json:"description"`
}

func (s *Server) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Name == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	dept := model.Department{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateDepartment(r.Context(), dept); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusBadRequest, "department_already_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapDepartment(dept))
}

func (s *Server) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	departmentID := chi.URLParam(r, "id")
	if departmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_department_id")
		return
	}
	var req departmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Name == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	updated, err := s.store.UpdateDepartment(r.Context(), model.Department{
		ID:          departmentID,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "department_not_found")
			return
		}
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusBadRequest, "department_already_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapDepartment(updated))
}

func (s *Server) handleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	departmentID := chi.URLParam(r, "id")
	if departmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_department_id")
		return
	}
	if err := s.store.DeleteDepartment(r.Context(), departmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "department_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListHODs(w http.ResponseWriter, r *http.Request) {
	hods, err := s.store.ListHODs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	result := make([]hodSummary, 0, len(hods))
	for _, hod := range hods {
		result = append(result, mapHOD(hod))
	}
	writeJSON(w, http.StatusOK, result)
}

type hodCreateRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	DepartmentID string `json:"departmentId"`
}

func (s *Server) handleCreateHOD(w http.ResponseWriter, r *http.Request) {
	var req hodCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if req.Name == "" || req.Email == "" || req.DepartmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	dept, err := s.store.GetDepartment(r.Context(), req.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, "department_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	hod := model.HOD{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		DepartmentID: req.DepartmentID,
		CreatedAt:    time.Now().UTC(),
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		hod.Phone = &phone
	}

	if err := s.store.CreateHOD(r.Context(), hod); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusBadRequest, "hod_already_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, mapHOD(model.HODWithDepartment{
		HOD:            hod,
		DepartmentName: dept.Name,
		DepartmentCode: dept.Code,
	}))
}

func (s *Server) handleDeleteHOD(w http.ResponseWriter, r *http.Request) {
	hodID := chi.URLParam(r, "id")
	if hodID == "" {
		writeError(w, http.StatusBadRequest, "missing_hod_id")
		return
	}
	if err := s.store.DeleteHOD(r.Context(), hodID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "hod_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	departments, err := s.store.CountDepartments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	hods, err := s.store.CountHODs(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	courses, err := s.store.CountCourses(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	students, err := s.store.CountStudents(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	recentDepartments, err := s.store.RecentDepartments(ctx, recentLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	recentHODs, err := s.store.RecentHODs(ctx, recentLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := adminStatsResponse{
		Stats: adminStatsCounts{
			Departments: departments,
			HODs:        hods,
			Courses:     courses,
			Students:    students,
		},
		RecentDepartments: make([]departmentSummary, 0, len(recentDepartments)),
		RecentHODs:        make([]hodSummary, 0, len(recentHODs)),
	}
	for _, dept := range recentDepartments {
		resp.RecentDepartments = append(resp.RecentDepartments, mapDepartment(dept))
	}
	for _, hod := range recentHODs {
		resp.RecentHODs = append(resp.RecentHODs, mapHOD(hod))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	courses, err := s.store.ListCoursesByDepartment(r.Context(), claims.DepartmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapCourses(courses))
}

type courseRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Year        int     `json:"year"`
	Semester    int     `json:"semester"`
	CreditUnits int     `json:"creditUnits"`
}

func (req *courseRequest) validate() string {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" {
		return "missing_fields"
	}
	if req.Year < 1 {
		return "invalid_year"
	}
	if req.Semester != 1 && req.Semester != 2 {
		return "invalid_semester"
	}
	return ""
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req courseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if errCode := req.validate(); errCode != "" {
		writeError(w, http.StatusBadRequest, errCode)
		return
	}

	course := model.CourseUnit{
		ID:           uuid.NewString(),
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		Year:         req.Year,
		Semester:     req.Semester,
		CreditUnits:  req.CreditUnits,
		DepartmentID: claims.DepartmentID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateCourse(r.Context(), course); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusBadRequest, "course_code_already_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapCourse(course))
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID := chi.URLParam(r, "id")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "missing_course_id")
		return
	}
	var req courseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if errCode := req.validate(); errCode != "" {
		writeError(w, http.StatusBadRequest, errCode)
		return
	}

	updated, err := s.store.UpdateCourse(r.Context(), model.CourseUnit{
		ID:           courseID,
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		Year:         req.Year,
		Semester:     req.Semester,
		CreditUnits:  req.CreditUnits,
		DepartmentID: claims.DepartmentID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "course_not_found")
			return
		}
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusBadRequest, "course_code_already_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapCourse(updated))
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID := chi.URLParam(r, "id")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "missing_course_id")
		return
	}
	if err := s.store.DeleteCourse(r.Context(), courseID, claims.DepartmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "course_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHODStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := r.Context()

	dept, err := s.store.GetDepartment(ctx, claims.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "department_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	courses, err := s.store.CountCoursesByDepartment(ctx, claims.DepartmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	students, err := s.store.CountStudentsByDepartment(ctx, claims.DepartmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	byYear, err := s.store.CoursesByYear(ctx, claims.DepartmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	bySemester, err := s.store.CoursesBySemester(ctx, claims.DepartmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := hodStatsResponse{
		Stats: hodStatsCounts{
			Courses:    courses,
			Students:   students,
			Department: dept.Name,
		},
		CoursesByYear:     make([]yearCountSummary, 0, len(byYear)),
		CoursesBySemester: make([]semesterCountSummary, 0, len(bySemester)),
	}
	for _, count := range byYear {
		resp.CoursesByYear = append(resp.CoursesByYear, yearCountSummary{Year: count.Year, Count: count.Count})
	}
	for _, count := range bySemester {
		resp.CoursesBySemester = append(resp.CoursesBySemester, semesterCountSummary{Semester: count.Semester, Count: count.Count})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStudentStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := r.Context()

	student, err := s.store.GetStudentByID(ctx, claims.StudentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	dept, err := s.store.GetDepartment(ctx, student.DepartmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	total, err := s.store.CountStudentCourses(ctx, student.DepartmentID, student.YearOfStudy, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	semesterOne := 1
	sem1, err := s.store.CountStudentCourses(ctx, student.DepartmentID, student.YearOfStudy, &semesterOne)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	semesterTwo := 2
	sem2, err := s.store.CountStudentCourses(ctx, student.DepartmentID, student.YearOfStudy, &semesterTwo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, studentStatsResponse{
		Stats: studentStatsCounts{
			TotalCourses:     total,
			Semester1Courses: sem1,
			Semester2Courses: sem2,
			Department:       dept.Name,
			YearOfStudy:      student.YearOfStudy,
		},
	})
}

func (s *Server) handleStudentCourses(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	student, err := s.store.GetStudentByID(r.Context(), claims.StudentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	var semester *int
	if raw := r.URL.Query().Get("semester"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_semester")
			return
		}
		semester = &parsed
	}

	courses, err := s.store.ListStudentCourses(r.Context(), student.DepartmentID, student.YearOfStudy, semester)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": mapCourses(courses)})
}

func (s *Server) handleStudentSearch(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []courseSummary{})
		return
	}

	courses, err := s.store.SearchCourses(r.Context(), claims.DepartmentID, query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapCourses(courses))
}

func (s *Server) handleEntryPage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"page": page})
	}
}

// dispatchVerificationCode mints a code, persists it, then hands it to the
// notifier. A delivery failure leaves the already-issued code redeemable
// until its TTL; only the error code differs so the caller can tell the
// two failure modes apart.
func (s *Server) dispatchVerificationCode(ctx context.Context, role, email string) (string, error) {
	code, err := crypto.GenerateVerificationCode()
	if err != nil {
		return "server_error", err
	}
	if err := s.codes.Issue(ctx, role, email, code); err != nil {
		return "server_error", err
	}
	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		return "delivery_failed", err
	}
	return "", nil
}

func (s *Server) issueSession(w http.ResponseWriter, claims auth.SessionClaims) error {
	token, err := auth.NewSessionToken(s.cfg.SessionSecret, s.cfg.SessionIssuer, s.cfg.SessionTTL, claims)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName(claims.Role),
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func clearSessionCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) secureCookies() bool {
	return s.cfg.Environment == "production"
}

func sessionCookieName(role string) string {
	return role + "-session"
}

// requireSession guards API routes: a missing, malformed, expired or
// wrong-role cookie yields a 401.
func (s *Server) requireSession(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := s.sessionClaims(r, role)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// portalGate guards portal page routes: instead of an error body the
// client is sent back to the role's login entry point.
func (s *Server) portalGate(role, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := s.sessionClaims(r, role)
			if claims == nil {
				http.Redirect(w, r, loginPath, http.StatusTemporaryRedirect)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) sessionClaims(r *http.Request, role string) *auth.SessionClaims {
	cookie, err := r.Cookie(sessionCookieName(role))
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := auth.ParseSessionToken(s.cfg.SessionSecret, cookie.Value, role)
	if err != nil {
		return nil
	}
	return claims
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.SessionClaims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.SessionClaims)
	return claims
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

type departmentSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type hodSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          *string   `json:"phone,omitempty"`
	DepartmentID   string    `json:"departmentId"`
	DepartmentName string    `json:"departmentName"`
	DepartmentCode string    `json:"departmentCode"`
	CreatedAt      time.Time `json:"createdAt"`
}

type studentSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	StudentNumber string    `json:"studentNumber"`
	Phone         *string   `json:"phone,omitempty"`
	YearOfStudy   int       `json:"yearOfStudy"`
	DepartmentID  string    `json:"departmentId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type courseSummary struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	Year         int       `json:"year"`
	Semester     int       `json:"semester"`
	CreditUnits  int       `json:"creditUnits"`
	DepartmentID string    `json:"departmentId"`
	CreatedAt    time.Time `json:"createdAt"`
}

type adminStatsCounts struct {
	Departments int64 `json:"departments"`
	HODs        int64 `json:"hods"`
	Courses     int64 `json:"courses"`
	Students    int64 `json:"students"`
}

type adminStatsResponse struct {
	Stats             adminStatsCounts    `json:"stats"`
	RecentDepartments []departmentSummary `json:"recentDepartments"`
	RecentHODs        []hodSummary        `json:"recentHODs"`
}

type hodStatsCounts struct {
	Courses    int64  `json:"courses"`
	Students   int64  `json:"students"`
	Department string `json:"department"`
}

type yearCountSummary struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

type semesterCountSummary struct {
	Semester int   `json:"semester"`
	Count    int64 `json:"count"`
}

type hodStatsResponse struct {
	Stats             hodStatsCounts         `json:"stats"`
	CoursesByYear     []yearCountSummary     `json:"coursesByYear"`
	CoursesBySemester []semesterCountSummary `json:"coursesBySemester"`
}

type studentStatsCounts struct {
	TotalCourses     int64  `json:"totalCourses"`
	Semester1Courses int64  `json:"semester1Courses"`
	Semester2Courses int64  `json:"semester2Courses"`
	Department       string `json:"department"`
	YearOfStudy      int    `json:"yearOfStudy"`
}

type studentStatsResponse struct {
	Stats studentStatsCounts `json:"stats"`
}

func mapDepartment(dept model.Department) departmentSummary {
	return departmentSummary{
		ID:          dept.ID,
		Name:        dept.Name,
		Code:        dept.Code,
		Description: dept.Description,
		CreatedAt:   dept.CreatedAt,
	}
}

func mapHOD(hod model.HODWithDepartment) hodSummary {
	return hodSummary{
		ID:             hod.ID,
		Name:           hod.Name,
		Email:          hod.Email,
		Phone:          hod.Phone,
		DepartmentID:   hod.DepartmentID,
		DepartmentName: hod.DepartmentName,
		DepartmentCode: hod.DepartmentCode,
		CreatedAt:      hod.CreatedAt,
	}
}

func mapStudent(student model.Student) studentSummary {
	return studentSummary{
		ID:            student.ID,
		Name:          student.Name,
		Email:         student.Email,
		StudentNumber: student.StudentNumber,
		Phone:         student.Phone,
		YearOfStudy:   student.YearOfStudy,
		DepartmentID:  student.DepartmentID,
		CreatedAt:     student.CreatedAt,
	}
}

func mapCourse(course model.CourseUnit) courseSummary {
	return courseSummary{
		ID:           course.ID,
		Code:         course.Code,
		Name:         course.Name,
		Description:  course.Description,
		Year:         course.Year,
		Semester:     course.Semester,
		CreditUnits:  course.CreditUnits,
		DepartmentID: course.DepartmentID,
		CreatedAt:    course.CreatedAt,
	}
}

func mapCourses(courses []model.CourseUnit) []courseSummary {
	result := make([]courseSummary, 0, len(courses))
	for _, course := range courses {
		result = append(result, mapCourse(course))
	}
	return result
}
