package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/codeedu/lms/apps/api/echo"
	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
	"github.com/codeedu/lms/tests"
)

type assignmentFixture struct {
	app          *testutil.App
	srv          *echoapi.Server
	teacher      user.User
	student      user.User
	classmate    user.User
	frontStudent user.User
	frontTeacher user.User
}

func newAssignmentFixture(t *testing.T) assignmentFixture {
	app, srv := setup(t)
	testutil.CreateGroup(t, app.Repos.Groups, "Back-end", "201")
	testutil.CreateGroup(t, app.Repos.Groups, "Front-end", "201")
	return assignmentFixture{
		app:          app,
		srv:          srv,
		teacher:      testutil.CreateTeacher(t, app.Repos.Users, "Tom", "tom@gmail.com", "Back-end"),
		student:      testutil.CreateStudent(t, app.Repos.Users, "Bob", "bob@code.edu.az", "Back-end", "201"),
		classmate:    testutil.CreateStudent(t, app.Repos.Users, "Ann", "ann@code.edu.az", "Back-end", "201"),
		frontStudent: testutil.CreateStudent(t, app.Repos.Users, "Cid", "cid@code.edu.az", "Front-end", "201"),
		frontTeacher: testutil.CreateTeacher(t, app.Repos.Users, "Fay", "fay@gmail.com", "Front-end"),
	}
}

func (f assignmentFixture) token(t *testing.T, usr user.User) string {
	return getToken(t, f.app.Conf, usr)
}

func (f assignmentFixture) notificationsOf(t *testing.T, usr user.User) []notification.Notification {
	t.Helper()
	ns, err := f.app.Repos.Notifications.QueryNotifications(context.Background(), notification.Filter{RecipientID: usr.ID})
	require.NoError(t, err)
	return ns
}

func (f assignmentFixture) reload(t *testing.T, id string) assignment.Assignment {
	t.Helper()
	a, err := f.app.Repos.Assignments.GetAssignment(context.Background(), id)
	require.NoError(t, err)
	return a
}

func Test_assignmentApi_lifecycle(t *testing.T) {
	f := newAssignmentFixture(t)
	teacherToken := f.token(t, f.teacher)
	studentToken := f.token(t, f.student)

	// create
	var created echoapi.AssignmentResponse
	rec := serve(t, f.srv, http.MethodPost, "/api/assignments/create", teacherToken, []byte(`{
		"title": "HW1",
		"description": "REST API",
		"deadline": "2099-01-01",
		"course": "Back-end",
		"groupNo": "201"
	}`), &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	asg := created.Assignment
	assert.Equal(t, "Task created successfully", created.Message)
	assert.NotEmpty(t, asg.ID)
	assert.Equal(t, "HW1", asg.Title)
	assert.Equal(t, "REST API", asg.Description)
	assert.Equal(t, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), asg.Deadline.UTC())
	assert.Equal(t, "Back-end", asg.Course)
	assert.Equal(t, "201", asg.GroupNo)
	assert.Equal(t, f.teacher.ID, asg.TeacherID)
	assert.Equal(t, assignment.StatusCreated, asg.Status)

	// one intent per student of the group
	assert.Equal(t, 2, f.app.Flush(t))
	assert.Len(t, f.notificationsOf(t, f.student), 1)
	assert.Len(t, f.notificationsOf(t, f.classmate), 1)
	assert.Empty(t, f.notificationsOf(t, f.frontStudent))

	// the teacher's course lists it with the same visible fields
	var listed []assignment.Assignment
	rec = serve(t, f.srv, http.MethodGet, "/api/assignments/teacher", teacherToken, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, listed, 1)
	assert.Equal(t, asg.ID, listed[0].ID)
	assert.Equal(t, asg.Title, listed[0].Title)
	assert.Equal(t, asg.Description, listed[0].Description)
	assert.True(t, asg.Deadline.Equal(listed[0].Deadline))
	assert.Equal(t, asg.Course, listed[0].Course)
	assert.Equal(t, asg.GroupNo, listed[0].GroupNo)

	// the student sees it with its teacher
	var views []assignment.StudentView
	rec = serve(t, f.srv, http.MethodGet, "/api/assignments/student", studentToken, nil, &views)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, views, 1)
	assert.Equal(t, asg.ID, views[0].ID)
	require.NotNil(t, views[0].Teacher)
	assert.Equal(t, f.teacher.Summary(), *views[0].Teacher)

	// submit
	var submitted echoapi.AssignmentResponse
	rec = serve(t, f.srv, http.MethodPatch, "/api/assignments/"+asg.ID+"/submit", studentToken,
		[]byte(`{"githubLink": "https://github.com/b/hw1"}`), &submitted)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Task sent successfully.", submitted.Message)
	assert.NotNil(t, submitted.Assignment.SubmittedAt)
	assert.Equal(t, f.student.ID, submitted.Assignment.StudentID)
	assert.Equal(t, "https://github.com/b/hw1", submitted.Assignment.GithubLink)
	assert.Equal(t, assignment.StatusSubmitted, submitted.Assignment.Status)

	assert.Equal(t, 1, f.app.Flush(t))
	teacherNotifs := f.notificationsOf(t, f.teacher)
	require.Len(t, teacherNotifs, 1)
	assert.Equal(t, `Bob "HW1" handed over the assignment. Link: https://github.com/b/hw1`, teacherNotifs[0].Message)

	// grade
	var graded echoapi.AssignmentResponse
	rec = serve(t, f.srv, http.MethodPatch, "/api/assignments/"+asg.ID+"/grade", teacherToken,
		[]byte(`{"grade": 85, "feedback": "Good"}`), &graded)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Assignment graded", graded.Message)
	require.NotNil(t, graded.Assignment.Grade)
	assert.Equal(t, 85, *graded.Assignment.Grade)
	assert.Equal(t, "Good", graded.Assignment.Feedback)
	assert.Equal(t, assignment.StatusGraded, graded.Assignment.Status)

	assert.Equal(t, 1, f.app.Flush(t))
	studentNotifs := f.notificationsOf(t, f.student)
	require.Len(t, studentNotifs, 2)
	var gradedMsgs int
	for _, n := range studentNotifs {
		if strings.Contains(n.Message, "85") {
			gradedMsgs++
			assert.Equal(t, `Task "HW1" rated by Tom Teacher. Score: 85`, n.Message)
		}
	}
	assert.Equal(t, 1, gradedMsgs)
	assert.Len(t, f.notificationsOf(t, f.classmate), 1)

	// the graded assignment cannot be handed over again
	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "resubmit after grading", method: http.MethodPatch, path: "/api/assignments/" + asg.ID + "/submit",
			token: studentToken, body: []byte(`{"githubLink": "https://github.com/b/hw1-v2"}`), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "the assignment has already been graded"}),
		},
	})
}

func Test_assignmentApi_create(t *testing.T) {
	f := newAssignmentFixture(t)
	teacherToken := f.token(t, f.teacher)

	body := func(course, groupNo, deadline string) []byte {
		return marchallObj(t, assignment.NewAssignment{
			Title:    "HW1",
			Deadline: deadline,
			Course:   course,
			GroupNo:  groupNo,
		})
	}

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/api/assignments/create",
			body: body("Back-end", "201", "2099-01-01"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Teacher required", method: http.MethodPost, path: "/api/assignments/create", token: f.token(t, f.student),
			body: body("Back-end", "201", "2099-01-01"), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only teachers can create assignments"}),
		},
		{
			name: "unknown group", method: http.MethodPost, path: "/api/assignments/create", token: teacherToken,
			body: body("Back-end", "999", "2099-01-01"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "there is no group for this course"}),
		},
		{
			name: "group of another course", method: http.MethodPost, path: "/api/assignments/create", token: teacherToken,
			body: body("Cybersecurity", "201", "2099-01-01"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "there is no group for this course"}),
		},
		{
			name: "bad deadline", method: http.MethodPost, path: "/api/assignments/create", token: teacherToken,
			body: body("Back-end", "201", "next week"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"deadline": "deadline must be a date (YYYY-MM-DD) or an RFC 3339 timestamp",
			}),
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/api/assignments/create", token: teacherToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/api/assignments/create", token: teacherToken,
			body: []byte(`{"title":`), wantCode: http.StatusBadRequest,
		},
	})

	asgmts, err := f.app.Repos.Assignments.QueryAssignments(context.Background(), assignment.Filter{})
	require.NoError(t, err)
	assert.Empty(t, asgmts, "rejected creations must not persist anything")
	assert.Zero(t, f.app.Flush(t))
}

func Test_assignmentApi_submit(t *testing.T) {
	f := newAssignmentFixture(t)
	studentToken := f.token(t, f.student)

	asg := testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "HW1", "201", time.Now().Add(24*time.Hour))
	late := testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "HW0", "201", time.Now().Add(-time.Hour))
	path := func(a assignment.Assignment) string { return "/api/assignments/" + a.ID + "/submit" }
	link := []byte(`{"githubLink": "https://github.com/b/hw1"}`)

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "Auth required", method: http.MethodPatch, path: path(asg), body: link,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "not a github link", method: http.MethodPatch, path: path(asg), token: studentToken,
			body: []byte(`{"githubLink": "https://gitlab.com/b/hw1"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "github profile only", method: http.MethodPatch, path: path(asg), token: studentToken,
			body: []byte(`{"githubLink": "https://github.com/b"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "missing link", method: http.MethodPatch, path: path(asg), token: studentToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "deadline passed", method: http.MethodPatch, path: path(late), token: studentToken, body: link,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "the deadline for the assignment has passed"}),
		},
		{
			name: "deadline passed with a bad link", method: http.MethodPatch, path: path(late), token: studentToken,
			body: []byte(`{"githubLink": "lol"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "student of another course", method: http.MethodPatch, path: path(asg), token: f.token(t, f.frontStudent), body: link,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you do not have permission to submit this assignment"}),
		},
		{
			name: "teachers cannot submit", method: http.MethodPatch, path: path(asg), token: f.token(t, f.teacher), body: link,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you do not have permission to submit this assignment"}),
		},
		{
			name: "unknown assignment", method: http.MethodPatch, path: "/api/assignments/lol/submit", token: studentToken, body: link,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "task not found"}),
		},
	})

	for _, a := range []assignment.Assignment{asg, late} {
		got := f.reload(t, a.ID)
		assert.Nil(t, got.SubmittedAt)
		assert.Empty(t, got.GithubLink)
		assert.Empty(t, got.StudentID)
		assert.Equal(t, assignment.StatusCreated, got.State())
	}
	assert.Zero(t, f.app.Flush(t))

	// case-insensitive match, resubmission allowed until graded
	for _, l := range []string{"HTTPS://GitHub.com/b/hw1.git", "https://www.github.com/b/hw1/"} {
		rec := serve(t, f.srv, http.MethodPatch, path(asg), studentToken, marchallObj(t, assignment.Submission{GithubLink: l}), nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, "https://www.github.com/b/hw1/", f.reload(t, asg.ID).GithubLink)
	assert.Equal(t, 2, f.app.Flush(t))
}

func Test_assignmentApi_grade(t *testing.T) {
	f := newAssignmentFixture(t)
	teacherToken := f.token(t, f.teacher)

	asg := testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "HW1", "201", time.Now().Add(24*time.Hour))
	pending := testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "HW2", "201", time.Now().Add(24*time.Hour))
	rec := serve(t, f.srv, http.MethodPatch, "/api/assignments/"+asg.ID+"/submit", f.token(t, f.student),
		[]byte(`{"githubLink": "https://github.com/b/hw1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, f.app.Flush(t))

	path := "/api/assignments/" + asg.ID + "/grade"
	errRequired := marchallObj(t, httpErr{Error: "score and feedback required"})
	errRange := marchallObj(t, httpErr{Error: "score should be between 0-100"})

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "Auth required", method: http.MethodPatch, path: path, body: []byte(`{"grade": 85, "feedback": "Good"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "students cannot evaluate", method: http.MethodPatch, path: path, token: f.token(t, f.student),
			body: []byte(`{"grade": "lol"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only teachers can evaluate"}),
		},
		{
			name: "teacher of another course", method: http.MethodPatch, path: path, token: f.token(t, f.frontTeacher),
			body: []byte(`{"grade": 85, "feedback": "Good"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "you do not have permission to grade this assignment"}),
		},
		{name: "grade required", method: http.MethodPatch, path: path, token: teacherToken, body: []byte(`{"feedback": "Good"}`), wantCode: http.StatusBadRequest, wantData: errRequired},
		{name: "feedback required", method: http.MethodPatch, path: path, token: teacherToken, body: []byte(`{"grade": 85}`), wantCode: http.StatusBadRequest, wantData: errRequired},
		{name: "blank feedback", method: http.MethodPatch, path: path, token: teacherToken, body: []byte(`{"grade": 85, "feedback": "  "}`), wantCode: http.StatusBadRequest, wantData: errRequired},
		{name: "grade above 100", method: http.MethodPatch, path: path, token: teacherToken, body: []byte(`{"grade": 101, "feedback": "Good"}`), wantCode: http.StatusBadRequest, wantData: errRange},
		{name: "negative grade", method: http.MethodPatch, path: path, token: teacherToken, body: []byte(`{"grade": -1, "feedback": "Good"}`), wantCode: http.StatusBadRequest, wantData: errRange},
		{name: "decimal grade", method: http.MethodPatch, path: path, token: teacherToken, body: []byte(`{"grade": 8.5, "feedback": "Good"}`), wantCode: http.StatusBadRequest, wantData: errRange},
		{name: "non-numeric grade", method: http.MethodPatch, path: path, token: teacherToken, body: []byte(`{"grade": "A+", "feedback": "Good"}`), wantCode: http.StatusBadRequest, wantData: errRange},
		{
			name: "not submitted yet", method: http.MethodPatch, path: "/api/assignments/" + pending.ID + "/grade", token: teacherToken,
			body: []byte(`{"grade": 85, "feedback": "Good"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "the assignment has not been submitted yet"}),
		},
		{
			name: "unknown assignment", method: http.MethodPatch, path: "/api/assignments/lol/grade", token: teacherToken,
			body: []byte(`{"grade": 85, "feedback": "Good"}`), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "task not found"}),
		},
	})

	got := f.reload(t, asg.ID)
	assert.Nil(t, got.Grade)
	assert.Empty(t, got.Feedback)
	assert.Equal(t, assignment.StatusSubmitted, got.State())
	assert.Zero(t, f.app.Flush(t))

	// a numeric string is accepted, and re-grading overwrites
	for _, tt := range []struct {
		body  string
		grade int
	}{
		{body: `{"grade": "0", "feedback": "Empty repository"}`, grade: 0},
		{body: `{"grade": 95, "feedback": "Fixed"}`, grade: 95},
	} {
		var resp echoapi.AssignmentResponse
		rec := serve(t, f.srv, http.MethodPatch, path, teacherToken, []byte(tt.body), &resp)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotNil(t, resp.Assignment.Grade)
		assert.Equal(t, tt.grade, *resp.Assignment.Grade)
	}
	assert.Equal(t, 2, f.app.Flush(t))
	assert.Equal(t, "Fixed", f.reload(t, asg.ID).Feedback)
}

func Test_assignmentApi_updateDelete(t *testing.T) {
	f := newAssignmentFixture(t)
	teacherToken := f.token(t, f.teacher)
	asg := testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "HW1", "201", time.Now().Add(24*time.Hour))
	path := "/api/assignments/" + asg.ID

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "students cannot edit", method: http.MethodPatch, path: path, token: f.token(t, f.student),
			body: []byte(`{"title": "lol"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only teachers can edit assignments"}),
		},
		{
			name: "students cannot edit unknown tasks", method: http.MethodPatch, path: "/api/assignments/does-not-exist", token: f.token(t, f.student),
			body: []byte(`{"title": "lol"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only teachers can edit assignments"}),
		},
		{
			name: "students cannot delete", method: http.MethodDelete, path: path, token: f.token(t, f.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "only teachers can delete assignments"}),
		},
		{
			name: "students cannot delete unknown tasks", method: http.MethodDelete, path: "/api/assignments/does-not-exist", token: f.token(t, f.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "only teachers can delete assignments"}),
		},
		{
			name: "teacher of another course cannot edit", method: http.MethodPatch, path: path, token: f.token(t, f.frontTeacher),
			body: []byte(`{"title": "lol"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "you do not have permission to edit this assignment"}),
		},
		{
			name: "teacher of another course cannot delete", method: http.MethodDelete, path: path, token: f.token(t, f.frontTeacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you do not have permission to delete this assignment"}),
		},
	})

	var updated echoapi.AssignmentResponse
	rec := serve(t, f.srv, http.MethodPatch, path, teacherToken, []byte(`{"title": "HW1 (v2)", "description": "  "}`), &updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Task successfully updated", updated.Message)
	assert.Equal(t, "HW1 (v2)", updated.Assignment.Title)
	assert.Equal(t, asg.GroupNo, updated.Assignment.GroupNo)

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "deleted", method: http.MethodDelete, path: path, token: teacherToken,
			wantData: marchallObj(t, echoapi.MessageResponse{Message: "Task successfully deleted."}),
		},
		{
			name: "already deleted", method: http.MethodDelete, path: path, token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "task not found"}),
		},
	})
}

func Test_assignmentApi_query(t *testing.T) {
	f := newAssignmentFixture(t)
	teacherToken := f.token(t, f.teacher)
	deadline := time.Now().Add(24 * time.Hour)
	hw1 := testutil.CreateAssignment(t, f.app.Repos.Assignments, f.teacher, "HW1", "201", deadline)
	testutil.CreateAssignment(t, f.app.Repos.Assignments, f.frontTeacher, "CSS", "201", deadline)

	runHTTPTests(t, f.srv, []httpTest{
		{name: "Auth required", path: "/api/assignments/teacher", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students cannot list the course", path: "/api/assignments/teacher", token: f.token(t, f.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "only teachers can perform this operation"}),
		},
		{name: "teacher of an empty course", path: "/api/assignments/teacher", token: f.token(t, testutil.CreateTeacher(t, f.app.Repos.Users, "Gus", "gus@gmail.com", "Cybersecurity")), wantData: marchallList(t)},
	})

	// no mutation in between: identical arrays
	first := serve(t, f.srv, http.MethodGet, "/api/assignments/teacher", teacherToken, nil, nil)
	second := serve(t, f.srv, http.MethodGet, "/api/assignments/teacher", teacherToken, nil, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	var listed []assignment.Assignment
	serve(t, f.srv, http.MethodGet, "/api/assignments/teacher", teacherToken, nil, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, hw1.ID, listed[0].ID)

	var views []assignment.StudentView
	serve(t, f.srv, http.MethodGet, "/api/assignments/student", f.token(t, f.frontStudent), nil, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "CSS", views[0].Title)
}
