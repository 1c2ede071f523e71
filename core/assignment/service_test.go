package assignment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
	emailsvc "github.com/codeedu/lms/services/email"
	testutil "github.com/codeedu/lms/tests"
)

type fixture struct {
	app                   *testutil.App
	teacher, otherTeacher user.User
	bob, ann, zed         user.User
}

func setup(t *testing.T) fixture {
	t.Helper()
	app := testutil.NewApp(t, core.NewTestConfig())
	users, groups := app.Repos.Users, app.Repos.Groups
	testutil.CreateGroup(t, groups, "Back-end", "BE-1")
	testutil.CreateGroup(t, groups, "Back-end", "BE-2")

	return fixture{
		app:          app,
		teacher:      testutil.CreateTeacher(t, users, "Tom", "tom@gmail.com", "Back-end"),
		otherTeacher: testutil.CreateTeacher(t, users, "Fay", "fay@gmail.com", "Front-end"),
		bob:          testutil.CreateStudent(t, users, "Bob", "bob@code.edu.az", "Back-end", "BE-1"),
		ann:          testutil.CreateStudent(t, users, "Ann", "ann@code.edu.az", "Back-end", "BE-1"),
		zed:          testutil.CreateStudent(t, users, "Zed", "zed@code.edu.az", "Back-end", "BE-2"),
	}
}

func (f fixture) assignment(t *testing.T, deadline time.Time) assignment.Assignment {
	return testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "Homework 1", "BE-1", deadline)
}

func (f fixture) notificationsOf(t *testing.T, usr user.User) []notification.Notification {
	t.Helper()
	notifs, err := f.app.Repos.Notifications.QueryNotifications(context.Background(), notification.Filter{RecipientID: usr.ID})
	require.NoError(t, err)
	return notifs
}

func assertForbidden(t *testing.T, err error) {
	t.Helper()
	var fe *core.ForbiddenError
	assert.True(t, errors.As(err, &fe), "expected a forbidden error, got %v", err)
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.app.Assignments.Create(ctx, f.teacher, assignment.NewAssignment{
		Title:    " Homework 1 ",
		Deadline: "2099-01-01",
		Course:   "Back-end",
		GroupNo:  "BE-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "Homework 1", a.Title)
	assert.Equal(t, assignment.StatusCreated, a.Status)
	assert.Equal(t, f.teacher.ID, a.TeacherID)
	assert.True(t, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC).Equal(a.Deadline))

	intents, err := f.app.Repos.Outbox.QueryIntents(ctx, notification.IntentFilter{AssignmentID: a.ID})
	require.NoError(t, err)
	require.Len(t, intents, 2)
	for _, it := range intents {
		assert.Equal(t, notification.EventAssignmentCreated, it.Event)
		assert.Equal(t, notification.StatusPending, it.Status)
	}

	assert.Equal(t, 2, f.app.Flush(t))
	assert.Len(t, emailsvc.GetSentMessages(), 2)

	for _, student := range []user.User{f.bob, f.ann} {
		notifs := f.notificationsOf(t, student)
		require.Len(t, notifs, 1)
		assert.Equal(t, "New Task: Homework 1. Deadline: 2099-01-01 00:00", notifs[0].Message)
		assert.Equal(t, a.ID, notifs[0].AssignmentID)
		assert.Equal(t, f.teacher.ID, notifs[0].SenderID)
	}
	assert.Empty(t, f.notificationsOf(t, f.zed))

	// delivered intents are not processed again
	assert.Equal(t, 0, f.app.Flush(t))
	assert.Len(t, emailsvc.GetSentMessages(), 2)
}

func TestService_Create_invalid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	valid := assignment.NewAssignment{Title: "hw", Deadline: "2099-01-01", Course: "Back-end", GroupNo: "BE-1"}

	_, err := f.app.Assignments.Create(ctx, f.bob, valid)
	assertForbidden(t, err)

	na := valid
	na.Title = "  "
	_, err = f.app.Assignments.Create(ctx, f.teacher, na)
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	na = valid
	na.Deadline = "tomorrow"
	_, err = f.app.Assignments.Create(ctx, f.teacher, na)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "deadline", verr.Fields[0].Field)

	na = valid
	na.GroupNo = "BE-9"
	_, err = f.app.Assignments.Create(ctx, f.teacher, na)
	assert.Equal(t, assignment.ErrNoSuchGroup, err)

	asgmts, err := f.app.Repos.Assignments.QueryAssignments(ctx, assignment.Filter{})
	require.NoError(t, err)
	assert.Empty(t, asgmts)
}

func TestService_Submit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assignment(t, time.Now().Add(time.Hour))
	sub := assignment.Submission{GithubLink: "https://github.com/bob/homework-1"}

	_, err := f.app.Assignments.Submit(ctx, f.bob, a.ID, assignment.Submission{GithubLink: "https://gitlab.com/bob/hw"})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	_, err = f.app.Assignments.Submit(ctx, f.bob, "nope", sub)
	assert.Equal(t, assignment.ErrNotFound, err)

	_, err = f.app.Assignments.Submit(ctx, f.zed, a.ID, sub)
	assertForbidden(t, err)

	_, err = f.app.Assignments.Submit(ctx, f.teacher, a.ID, sub)
	assertForbidden(t, err)

	submitted, err := f.app.Assignments.Submit(ctx, f.bob, a.ID, sub)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusSubmitted, submitted.Status)
	assert.Equal(t, f.bob.ID, submitted.StudentID)
	assert.Equal(t, sub.GithubLink, submitted.GithubLink)
	require.NotNil(t, submitted.SubmittedAt)

	assert.Equal(t, 1, f.app.Flush(t))
	notifs := f.notificationsOf(t, f.teacher)
	require.Len(t, notifs, 1)
	assert.Equal(t, `Bob "Homework 1" handed over the assignment. Link: https://github.com/bob/homework-1`, notifs[0].Message)
	assert.Equal(t, f.bob.ID, notifs[0].SenderID)

	msgs := emailsvc.GetSentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tom@gmail.com", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, sub.GithubLink)

	// resubmission is allowed until graded
	resubmitted, err := f.app.Assignments.Submit(ctx, f.bob, a.ID, assignment.Submission{GithubLink: "https://github.com/bob/homework-1.git"})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/bob/homework-1.git", resubmitted.GithubLink)
}

func TestService_Submit_deadlinePassed(t *testing.T) {
	f := setup(t)
	a := f.assignment(t, time.Now().Add(-time.Minute))

	_, err := f.app.Assignments.Submit(context.Background(), f.bob, a.ID, assignment.Submission{GithubLink: "https://github.com/bob/hw"})
	assert.Equal(t, assignment.ErrDeadlinePassed, err)

	got, err := f.app.Repos.Assignments.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCreated, got.Status)
	assert.Equal(t, 0, f.app.Flush(t))
}

func TestService_Submit_missingTeacher(t *testing.T) {
	f := setup(t)
	a := f.assignment(t, time.Now().Add(time.Hour))
	a.TeacherID = "gone"
	_, err := f.app.Repos.Assignments.UpdateAssignment(context.Background(), a)
	require.NoError(t, err)

	_, err = f.app.Assignments.Submit(context.Background(), f.bob, a.ID, assignment.Submission{GithubLink: "https://github.com/bob/hw"})
	require.NoError(t, err)
	assert.Equal(t, 0, f.app.Flush(t))
}

func grade(v string) json.RawMessage { return json.RawMessage(v) }

func TestService_Grade(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assignment(t, time.Now().Add(time.Hour))

	_, err := f.app.Assignments.Grade(ctx, f.teacher, a.ID, assignment.Evaluation{Grade: grade(`90`), Feedback: "good"})
	assert.Equal(t, assignment.ErrNotSubmitted, err)

	_, err = f.app.Assignments.Submit(ctx, f.bob, a.ID, assignment.Submission{GithubLink: "https://github.com/bob/hw"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.app.Flush(t))

	tests := []struct {
		name string
		ev   assignment.Evaluation
		err  error
	}{
		{"missing grade", assignment.Evaluation{Feedback: "good"}, assignment.ErrGradeRequired},
		{"blank grade", assignment.Evaluation{Grade: grade(`""`), Feedback: "good"}, assignment.ErrGradeRequired},
		{"missing feedback", assignment.Evaluation{Grade: grade(`90`), Feedback: "  "}, assignment.ErrGradeRequired},
		{"above max", assignment.Evaluation{Grade: grade(`101`), Feedback: "good"}, assignment.ErrGradeOutOfRange},
		{"below min", assignment.Evaluation{Grade: grade(`-1`), Feedback: "good"}, assignment.ErrGradeOutOfRange},
		{"not a number", assignment.Evaluation{Grade: grade(`"ten"`), Feedback: "good"}, assignment.ErrGradeOutOfRange},
		{"fraction", assignment.Evaluation{Grade: grade(`9.5`), Feedback: "good"}, assignment.ErrGradeOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.app.Assignments.Grade(ctx, f.teacher, a.ID, tc.ev)
			assert.Equal(t, tc.err, err)
		})
	}

	_, err = f.app.Assignments.Grade(ctx, f.otherTeacher, a.ID, assignment.Evaluation{Grade: grade(`90`), Feedback: "good"})
	assertForbidden(t, err)

	_, err = f.app.Assignments.Grade(ctx, f.teacher, "nope", assignment.Evaluation{Grade: grade(`90`), Feedback: "good"})
	assert.Equal(t, assignment.ErrNotFound, err)

	_, err = f.app.Assignments.Grade(ctx, f.bob, "nope", assignment.Evaluation{})
	assertForbidden(t, err)

	// zero is a valid grade
	graded, err := f.app.Assignments.Grade(ctx, f.teacher, a.ID, assignment.Evaluation{Grade: grade(`0`), Feedback: " try again "})
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusGraded, graded.Status)
	require.NotNil(t, graded.Grade)
	assert.Equal(t, 0, *graded.Grade)
	assert.Equal(t, "try again", graded.Feedback)

	assert.Equal(t, 1, f.app.Flush(t))
	notifs := f.notificationsOf(t, f.bob)
	require.Len(t, notifs, 1)
	assert.Equal(t, `Task "Homework 1" rated by Tom Teacher. Score: 0`, notifs[0].Message)

	// re-grading overwrites the previous grade
	graded, err = f.app.Assignments.Grade(ctx, f.teacher, a.ID, assignment.Evaluation{Grade: grade(`"95"`), Feedback: "better"})
	require.NoError(t, err)
	assert.Equal(t, 95, *graded.Grade)
	assert.Equal(t, "better", graded.Feedback)
	assert.Equal(t, 1, f.app.Flush(t))

	_, err = f.app.Assignments.Submit(ctx, f.bob, a.ID, assignment.Submission{GithubLink: "https://github.com/bob/hw2"})
	assert.Equal(t, assignment.ErrAlreadyGraded, err)
}

func TestService_Grade_submitterLeftGroup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assignment(t, time.Now().Add(time.Hour))

	_, err := f.app.Assignments.Submit(ctx, f.bob, a.ID, assignment.Submission{GithubLink: "https://github.com/bob/hw"})
	require.NoError(t, err)

	bob := f.bob
	bob.GroupNo = "BE-2"
	_, err = f.app.Repos.Users.UpdateUser(ctx, bob)
	require.NoError(t, err)

	_, err = f.app.Assignments.Grade(ctx, f.teacher, a.ID, assignment.Evaluation{Grade: grade(`80`), Feedback: "ok"})
	require.NoError(t, err)

	intents, err := f.app.Repos.Outbox.QueryIntents(ctx, notification.IntentFilter{Event: notification.EventAssignmentGraded})
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestService_Update(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assignment(t, time.Now().Add(time.Hour))
	str := func(s string) *string { return &s }

	updated, err := f.app.Assignments.Update(ctx, f.teacher, a.ID, assignment.UpdateAssignment{
		Title:    str("Homework 2"),
		Deadline: str("2099-06-01T12:00:00Z"),
		GroupNo:  str("BE-2"),
		Course:   str(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "Homework 2", updated.Title)
	assert.Equal(t, "BE-2", updated.GroupNo)
	assert.Equal(t, "Back-end", updated.Course)
	assert.True(t, time.Date(2099, 6, 1, 12, 0, 0, 0, time.UTC).Equal(updated.Deadline))

	_, err = f.app.Assignments.Update(ctx, f.teacher, a.ID, assignment.UpdateAssignment{GroupNo: str("BE-9")})
	assert.Equal(t, assignment.ErrNoSuchGroup, err)

	_, err = f.app.Assignments.Update(ctx, f.teacher, a.ID, assignment.UpdateAssignment{Title: str("   ")})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "title", verr.Fields[0].Field)

	_, err = f.app.Assignments.Update(ctx, f.otherTeacher, a.ID, assignment.UpdateAssignment{Title: str("x")})
	assertForbidden(t, err)

	_, err = f.app.Assignments.Update(ctx, f.bob, a.ID, assignment.UpdateAssignment{Title: str("x")})
	assertForbidden(t, err)

	// the role is checked before the lookup
	_, err = f.app.Assignments.Update(ctx, f.bob, "nope", assignment.UpdateAssignment{Title: str("x")})
	assertForbidden(t, err)

	got, err := f.app.Repos.Assignments.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Homework 2", got.Title)
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.assignment(t, time.Now().Add(time.Hour))

	assertForbidden(t, f.app.Assignments.Delete(ctx, f.otherTeacher, a.ID))
	assertForbidden(t, f.app.Assignments.Delete(ctx, f.bob, a.ID))
	assertForbidden(t, f.app.Assignments.Delete(ctx, f.bob, "nope"))

	require.NoError(t, f.app.Assignments.Delete(ctx, f.teacher, a.ID))
	assert.Equal(t, assignment.ErrNotFound, f.app.Assignments.Delete(ctx, f.teacher, a.ID))
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first := f.assignment(t, time.Now().Add(time.Hour))
	second := f.assignment(t, time.Now().Add(2*time.Hour))
	testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "Other group", "BE-2", time.Now().Add(time.Hour))

	views, err := f.app.Assignments.QueryForStudent(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, first.ID, views[0].ID)
	assert.Equal(t, second.ID, views[1].ID)
	require.NotNil(t, views[0].Teacher)
	assert.Equal(t, "Tom", views[0].Teacher.Name)

	asgmts, err := f.app.Assignments.QueryForTeacher(ctx, f.teacher)
	require.NoError(t, err)
	assert.Len(t, asgmts, 3)

	asgmts, err = f.app.Assignments.QueryForTeacher(ctx, f.otherTeacher)
	require.NoError(t, err)
	assert.Empty(t, asgmts)

	_, err = f.app.Assignments.QueryForTeacher(ctx, f.bob)
	assertForbidden(t, err)
}
