package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bugema/portal/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// IsUniqueViolation reports whether err is a postgres unique-constraint
// violation, surfaced to handlers as a 400 rather than a 500.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (model.Admin, error) {
	var admin model.Admin
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, created_at
		FROM admins
		WHERE email = $1
	`, email)
	err := row.Scan(&admin.ID, &admin.Email, &admin.Name, &admin.CreatedAt)
	return admin, err
}

func (s *Store) CreateAdmin(ctx context.Context, admin model.Admin) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admins (id, email, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, admin.ID, admin.Email, admin.Name, admin.CreatedAt)
	return err
}

func (s *Store) GetHODByEmailAndDepartment(ctx context.Context, email, departmentID string) (model.HOD, error) {
	var hod model.HOD
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, department_id, created_at
		FROM hods
		WHERE email = $1 AND department_id = $2
	`, email, departmentID)
	err := row.Scan(&hod.ID, &hod.Name, &hod.Email, &hod.Phone, &hod.DepartmentID, &hod.CreatedAt)
	return hod, err
}

func (s *Store) ListHODs(ctx context.Context) ([]model.HODWithDepartment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT h.id, h.name, h.email, h.phone, h.department_id, h.created_at, d.name, d.code
		FROM hods h
		JOIN departments d ON d.id = h.department_id
		ORDER BY h.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hods []model.HODWithDepartment
	for rows.Next() {
		var hod model.HODWithDepartment
		if err := rows.Scan(&hod.ID, &hod.Name, &hod.Email, &hod.Phone, &hod.DepartmentID, &hod.CreatedAt, &hod.DepartmentName, &hod.DepartmentCode); err != nil {
			return nil, err
		}
		hods = append(hods, hod)
	}
	return hods, rows.Err()
}

func (s *Store) CreateHOD(ctx context.Context, hod model.HOD) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hods (id, name, email, phone, department_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, hod.ID, hod.Name, hod.Email, hod.Phone, hod.DepartmentID, hod.CreatedAt)
	return err
}

func (s *Store) DeleteHOD(ctx context.Context, hodID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hods WHERE id = $1`, hodID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) GetStudentByEmailAndDepartment(ctx context.Context, email, departmentID string) (model.Student, error) {
	var student model.Student
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, student_number, phone, year_of_study, department_id, created_at
		FROM students
		WHERE email = $1 AND department_id = $2
	`, email, departmentID)
	err := row.Scan(
		&student.ID,
		&student.Name,
		&student.Email,
		&student.StudentNumber,
		&student.Phone,
		&student.YearOfStudy,
		&student.DepartmentID,
		&student.CreatedAt,
	)
	return student, err
}

func (s *Store) GetStudentByID(ctx context.Context, studentID string) (model.Student, error) {
	var student model.Student
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, student_number, phone, year_of_study, department_id, created_at
		FROM students
		WHERE id = $1
	`, studentID)
	err := row.Scan(
		&student.ID,
		&student.Name,
		&student.Email,
		&student.StudentNumber,
		&student.Phone,
		&student.YearOfStudy,
		&student.DepartmentID,
		&student.CreatedAt,
	)
	return student, err
}

func (s *Store) CreateStudent(ctx context.Context, student model.Student) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO students (id, name, email, student_number, phone, year_of_study, department_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, student.ID, student.Name, student.Email, student.StudentNumber, student.Phone, student.YearOfStudy, student.DepartmentID, student.CreatedAt)
	return err
}

func (s *Store) GetDepartment(ctx context.Context, departmentID string) (model.Department, error) {
	var dept model.Department
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, code, description, created_at
		FROM departments
		WHERE id = $1
	`, departmentID)
	err := row.Scan(&dept.ID, &dept.Name, &dept.Code, &dept.Description, &dept.CreatedAt)
	return dept, err
}

func (s *Store) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, code, description, created_at
		FROM departments
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []model.Department
	for rows.Next() {
		var dept model.Department
		if err := rows.Scan(&dept.ID, &dept.Name, &dept.Code, &dept.Description, &dept.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, dept)
	}
	return departments, rows.Err()
}

func (s *Store) CreateDepartment(ctx context.Context, dept model.Department) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO departments (id, name, code, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, dept.ID, dept.Name, dept.Code, dept.Description, dept.CreatedAt)
	return err
}

func (s *Store) UpdateDepartment(ctx context.Context, dept model.Department) (model.Department, error) {
	var updated model.Department
	row := s.pool.QueryRow(ctx, `
		UPDATE departments
		SET name = $1, code = $2, description = $3
		WHERE id = $4
		RETURNING id, name, code, description, created_at
	`, dept.Name, dept.Code, dept.Description, dept.ID)
	err := row.Scan(&updated.ID, &updated.Name, &updated.Code, &updated.Description, &updated.CreatedAt)
	return updated, err
}

func (s *Store) DeleteDepartment(ctx context.Context, departmentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, departmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) ListCoursesByDepartment(ctx context.Context, departmentID string) ([]model.CourseUnit, error) {
	return s.queryCourses(ctx, `
		SELECT id, code, name, description, year, semester, credit_units, department_id, created_at
		FROM course_units
		WHERE department_id = $1
		ORDER BY code ASC
	`, departmentID)
}

func (s *Store) CreateCourse(ctx context.Context, course model.CourseUnit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO course_units (id, code, name, description, year, semester, credit_units, department_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, course.ID, course.Code, course.Name, course.Description, course.Year, course.Semester, course.CreditUnits, course.DepartmentID, course.CreatedAt)
	return err
}

// UpdateCourse is scoped to the department so one HOD cannot edit another
// department's course by guessing its id.
func (s *Store) UpdateCourse(ctx context.Context, course model.CourseUnit) (model.CourseUnit, error) {
	var updated model.CourseUnit
	row := s.pool.QueryRow(ctx, `
		UPDATE course_units
		SET code = $1, name = $2, description = $3, year = $4, semester = $5, credit_units = $6
		WHERE id = $7 AND department_id = $8
		RETURNING id, code, name, description, year, semester, credit_units, department_id, created_at
	`, course.Code, course.Name, course.Description, course.Year, course.Semester, course.CreditUnits, course.ID, course.DepartmentID)
	err := row.Scan(
		&updated.ID,
		&updated.Code,
		&updated.Name,
		&updated.Description,
		&updated.Year,
		&updated.Semester,
		&updated.CreditUnits,
		&updated.DepartmentID,
		&updated.CreatedAt,
	)
	return updated, err
}

func (s *Store) DeleteCourse(ctx context.Context, courseID, departmentID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM course_units WHERE id = $1 AND department_id = $2
	`, courseID, departmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) SearchCourses(ctx context.Context, departmentID, query string) ([]model.CourseUnit, error) {
	pattern := "%" + query + "%"
	return s.queryCourses(ctx, `
		SELECT id, code, name, description, year, semester, credit_units, department_id, created_at
		FROM course_units
		WHERE department_id = $1 AND (code ILIKE $2 OR name ILIKE $2)
		ORDER BY code ASC
	`, departmentID, pattern)
}

func (s *Store) ListStudentCourses(ctx context.Context, departmentID string, year int, semester *int) ([]model.CourseUnit, error) {
	if semester != nil {
		return s.queryCourses(ctx, `
			SELECT id, code, name, description, year, semester, credit_units, department_id, created_at
			FROM course_units
			WHERE department_id = $1 AND year = $2 AND semester = $3
			ORDER BY semester ASC, code ASC
		`, departmentID, year, *semester)
	}
	return s.queryCourses(ctx, `
		SELECT id, code, name, description, year, semester, credit_units, department_id, created_at
		FROM course_units
		WHERE department_id = $1 AND year = $2
		ORDER BY semester ASC, code ASC
	`, departmentID, year)
}

func (s *Store) queryCourses(ctx context.Context, query string, args ...interface{}) ([]model.CourseUnit, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []model.CourseUnit
	for rows.Next() {
		var course model.CourseUnit
		if err := rows.Scan(
			&course.ID,
			&course.Code,
			&course.Name,
			&course.Description,
			&course.Year,
			&course.Semester,
			&course.CreditUnits,
			&course.DepartmentID,
			&course.CreatedAt,
		); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

func (s *Store) CountDepartments(ctx context.Context) (int64, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM departments`)
}

func (s *Store) CountHODs(ctx context.Context) (int64, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM hods`)
}

func (s *Store) CountCourses(ctx context.Context) (int64, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM course_units`)
}

func (s *Store) CountStudents(ctx context.Context) (int64, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM students`)
}

func (s *Store) CountCoursesByDepartment(ctx context.Context, departmentID string) (int64, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM course_units WHERE department_id = $1`, departmentID)
}

func (s *Store) CountStudentsByDepartment(ctx context.Context, departmentID string) (int64, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM students WHERE department_id = $1`, departmentID)
}

func (s *Store) CountStudentCourses(ctx context.Context, departmentID string, year int, semester *int) (int64, error) {
	if semester != nil {
		return s.countRow(ctx, `
			SELECT COUNT(*) FROM course_units WHERE department_id = $1 AND year = $2 AND semester = $3
		`, departmentID, year, *semester)
	}
	return s.countRow(ctx, `
		SELECT COUNT(*) FROM course_units WHERE department_id = $1 AND year = $2
	`, departmentID, year)
}

func (s *Store) CoursesByYear(ctx context.Context, departmentID string) ([]model.YearCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT year, COUNT(*)
		FROM course_units
		WHERE department_id = $1
		GROUP BY year
		ORDER BY year ASC
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []model.YearCount
	for rows.Next() {
		var count model.YearCount
		if err := rows.Scan(&count.Year, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

func (s *Store) CoursesBySemester(ctx context.Context, departmentID string) ([]model.SemesterCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT semester, COUNT(*)
		FROM course_units
		WHERE department_id = $1
		GROUP BY semester
		ORDER BY semester ASC
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []model.SemesterCount
	for rows.Next() {
		var count model.SemesterCount
		if err := rows.Scan(&count.Semester, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

func (s *Store) RecentDepartments(ctx context.Context, limit int) ([]model.Department, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, code, description, created_at
		FROM departments
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []model.Department
	for rows.Next() {
		var dept model.Department
		if err := rows.Scan(&dept.ID, &dept.Name, &dept.Code, &dept.Description, &dept.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, dept)
	}
	return departments, rows.Err()
}

func (s *Store) RecentHODs(ctx context.Context, limit int) ([]model.HODWithDepartment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT h.id, h.name, h.email, h.phone, h.department_id, h.created_at, d.name, d.code
		FROM hods h
		JOIN departments d ON d.id = h.department_id
		ORDER BY h.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hods []model.HODWithDepartment
	for rows.Next() {
		var hod model.HODWithDepartment
		if err := rows.Scan(&hod.ID, &hod.Name, &hod.Email, &hod.Phone, &hod.DepartmentID, &hod.CreatedAt, &hod.DepartmentName, &hod.DepartmentCode); err != nil {
			return nil, err
		}
		hods = append(hods, hod)
	}
	return hods, rows.Err()
}

func (s *Store) countRow(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}
