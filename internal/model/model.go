package model

import "time"

type Admin struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

type Department struct {
	ID          string
	Name        string
	Code        string
	Description *string
	CreatedAt   time.Time
}

type HOD struct {
	ID           string
	Name         string
	Email        string
	Phone        *string
	DepartmentID string
	CreatedAt    time.Time
}

// HODWithDepartment carries the joined department name and code for listings.
type HODWithDepartment struct {
	HOD
	DepartmentName string
	DepartmentCode string
}

type Student struct {
	ID            string
	Name          string
	Email         string
	StudentNumber string
	Phone         *string
	YearOfStudy   int
	DepartmentID  string
	CreatedAt     time.Time
}

type CourseUnit struct {
	ID           string
	Code         string
	Name         string
	Description  *string
	Year         int
	Semester     int
	CreditUnits  int
	DepartmentID string
	CreatedAt    time.Time
}

type YearCount struct {
	Year  int
	Count int64
}

type SemesterCount struct {
	Semester int
	Count    int64
}
