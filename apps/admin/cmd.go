package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp        = errors.New("help provided")
	errNoMigration = errors.New("migrations only apply to the postgres engine")
)

type commandLine struct {
	conf    *core.Config
	db      *sql.DB // nil unless the engine is postgres
	usrRepo user.Repository
	grpSvc  group.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -email EMAIL -name NAME -surname SURNAME -role student|teacher -course COURSE [-group GROUP_NO] - add or update a user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
	fmt.Println("  addgroup -course COURSE -group GROUP_NO - register a group")
	fmt.Println("  migrate COMMAND [ARGS] - run goose migrations (postgres)")
}

// promptPassword reads a password without echoing it.
func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's first name.")
	addUserSurname := addUserCmd.String("surname", "", "The user's last name.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "student or teacher.")
	addUserCourse := addUserCmd.String("course", "", "The user's course.")
	addUserGroup := addUserCmd.String("group", "", "The student's group number.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	addGroupCmd := flag.NewFlagSet("addgroup", flag.ContinueOnError)
	addGroupCourse := addGroupCmd.String("course", "", "The group's course.")
	addGroupNo := addGroupCmd.String("group", "", "The group number.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserEmail == "" || *addUserName == "" || *addUserCourse == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(newUserArgs{
			email:   *addUserEmail,
			name:    *addUserName,
			surname: *addUserSurname,
			role:    *addUserRole,
			course:  *addUserCourse,
			groupNo: *addUserGroup,
		}, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "addgroup":
		if err := addGroupCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addGroupCourse == "" || *addGroupNo == "" {
			addGroupCmd.Usage()
			return errHelp
		}
		return cli.addGroup(*addGroupCourse, *addGroupNo)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
