package user

import (
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/codeedu/lms/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

var (
	AllRoles = []string{RoleStudent, RoleTeacher}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Surname      string    `json:"surname"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Course       string    `json:"course"`
	GroupNo      string    `json:"groupNo,omitempty"` // students only
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
	LastLogin    time.Time `json:"lastLogin"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

func (u User) Address() mail.Address {
	return mail.Address{Name: u.FullName(), Address: u.Email}
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Surname: u.Surname}
}

// Summary is the public part of a User embedded in other resources.
type Summary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required,notblank"`
	Surname         string `json:"surname" validate:"required,notblank"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Course          string `json:"course" validate:"required,course"`
	GroupNo         string `json:"groupNo" validate:"required_if=Role student,max=10"`
	Role            string `json:"role" validate:"required,userrole"`
	InviteCode      string `json:"inviteCode" validate:"required"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Surname = core.CleanString(nu.Surname)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Course = core.CleanString(nu.Course)
	nu.GroupNo = core.CleanString(nu.GroupNo)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	if nu.Role == RoleTeacher {
		nu.GroupNo = "" // teachers are not bound to a group
	}
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

// Filter selects users; empty fields match everything.
type Filter struct {
	Role    string
	Course  string
	GroupNo *string
	IDs     []string
}

func (f Filter) Match(usr User) bool {
	if f.Role != "" && usr.Role != f.Role {
		return false
	}
	if f.Course != "" && usr.Course != f.Course {
		return false
	}
	if f.GroupNo != nil && usr.GroupNo != *f.GroupNo {
		return false
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if id == usr.ID {
				return true
			}
		}
		return false
	}
	return true
}

// GetFilter identifies a single user by one of its unique keys.
type GetFilter struct {
	ID    string
	Email string
}

// StudentsOf returns the filter matching every student of (course, groupNo).
func StudentsOf(course, groupNo string) Filter {
	return Filter{Role: RoleStudent, Course: course, GroupNo: &groupNo}
}
