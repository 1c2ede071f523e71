package main

import (
	"context"
	"fmt"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/user"
)

type newUserArgs struct {
	email, name, surname, role, course, groupNo string
}

func (a *newUserArgs) clean() error {
	a.email = core.CleanString(a.email, true /* lower */)
	a.name = core.CleanString(a.name)
	a.surname = core.CleanString(a.surname)
	a.role = core.CleanString(a.role, true /* lower */)
	a.course = core.CleanString(a.course)
	a.groupNo = core.CleanString(a.groupNo)

	switch a.role {
	case user.RoleStudent:
		if a.groupNo == "" {
			return fmt.Errorf("students need a group number")
		}
	case user.RoleTeacher:
		a.groupNo = ""
	default:
		return fmt.Errorf("%q: unknown role", a.role)
	}
	if !core.IsValidCourse(a.course) {
		return fmt.Errorf("%q: unknown course", a.course)
	}
	return nil
}

// addUser updates or creates a user.User, skipping the invitation code and email domain checks
func (cli *commandLine) addUser(args newUserArgs, pwd string) error {
	if err := args.clean(); err != nil {
		return err
	}

	ctx := context.Background()
	now := user.NowFunc().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: args.email})
	found := err == nil
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		usr = user.User{Email: args.email, CreatedAt: now}
	}

	usr.Name = args.name
	usr.Surname = args.surname
	usr.Role = args.role
	usr.Course = args.course
	usr.GroupNo = args.groupNo
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if found {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
