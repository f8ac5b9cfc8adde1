package listing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

const hostSchema = `
CREATE TABLE programs (id INTEGER PRIMARY KEY, name TEXT, idnumber TEXT, description TEXT, timecreated INTEGER);
CREATE TABLE courses (id INTEGER PRIMARY KEY, fullname TEXT, shortname TEXT, idnumber TEXT, startdate INTEGER, credits REAL);
CREATE TABLE coursesets (id INTEGER PRIMARY KEY, name TEXT, idnumber TEXT);
CREATE TABLE courseset_courses (id INTEGER PRIMARY KEY, coursesetid INTEGER, courseid INTEGER);
CREATE TABLE program_courses (id INTEGER PRIMARY KEY, programid INTEGER, courseid INTEGER);
CREATE TABLE program_coursesets (id INTEGER PRIMARY KEY, programid INTEGER, coursesetid INTEGER);
CREATE TABLE tracks (id INTEGER PRIMARY KEY, programid INTEGER, name TEXT, idnumber TEXT, startdate INTEGER, enddate INTEGER);
CREATE TABLE classes (id INTEGER PRIMARY KEY, courseid INTEGER, idnumber TEXT, startdate INTEGER, enddate INTEGER, maxstudents INTEGER);
CREATE TABLE class_enrolments (id INTEGER PRIMARY KEY, classid INTEGER, userid INTEGER);
CREATE TABLE waitlist (id INTEGER PRIMARY KEY, classid INTEGER, userid INTEGER);
CREATE TABLE users (id INTEGER PRIMARY KEY, firstname TEXT, lastname TEXT, email TEXT, country TEXT, city TEXT, timecreated INTEGER);
CREATE TABLE custom_field_data_text (id INTEGER PRIMARY KEY, fieldid INTEGER, instanceid INTEGER, data TEXT);
CREATE TABLE custom_field_data_char (id INTEGER PRIMARY KEY, fieldid INTEGER, instanceid INTEGER, data TEXT);
CREATE TABLE custom_field_data_int (id INTEGER PRIMARY KEY, fieldid INTEGER, instanceid INTEGER, data INTEGER);
CREATE TABLE custom_field_data_num (id INTEGER PRIMARY KEY, fieldid INTEGER, instanceid INTEGER, data REAL);

INSERT INTO programs (id, name, idnumber) VALUES (1, 'Nursing', 'P-NUR'), (2, 'Welding', 'P-WLD');
INSERT INTO courses (id, fullname, shortname, idnumber, startdate, credits) VALUES
	(11, 'Anatomy', 'C1', 'C1', 0, 3),
	(12, 'Pharmacology', 'C2', 'C2', 0, 4),
	(13, 'Metallurgy', 'C3', 'C3', 0, 3),
	(14, 'Safety', 'C4', 'C4', 0, 1);
INSERT INTO coursesets (id, name, idnumber) VALUES (21, 'Core', 'CS1'), (22, 'Shop', 'CS2');
INSERT INTO courseset_courses (coursesetid, courseid) VALUES (21, 11), (21, 12), (22, 13), (22, 14);
INSERT INTO program_courses (programid, courseid) VALUES (1, 11), (1, 12), (2, 13), (2, 14), (2, 12);
INSERT INTO program_coursesets (programid, coursesetid) VALUES (1, 21), (2, 22);
INSERT INTO tracks (id, programid, name, idnumber, startdate, enddate) VALUES (31, 1, 'Fall', 'T1', 0, 0), (32, 2, 'Spring', 'T2', 0, 0);
INSERT INTO classes (id, courseid, idnumber, startdate, enddate, maxstudents) VALUES
	(101, 11, 'ANA-1', 100, 200, 10),
	(102, 11, 'ANA-2', 300, 400, 10),
	(103, 12, 'PHA-1', 100, 200, 10),
	(104, 13, 'MET-1', 100, 200, 10),
	(105, 14, 'SAF-1', 500, 600, 10);
INSERT INTO users (id, firstname, lastname, email) VALUES (7, 'Ada', 'Lovelace', 'ada@example.com'), (8, 'Alan', 'Turing', 'alan@example.com');
INSERT INTO class_enrolments (classid, userid) VALUES (101, 7), (103, 7), (101, 8), (104, 8);
INSERT INTO waitlist (classid, userid) VALUES (102, 7);
INSERT INTO custom_field_data_int (fieldid, instanceid, data) VALUES (5, 11, 40), (5, 12, 25);
`

type fakeCatalog struct {
	fields map[string][]model.CustomField
	err    error
}

func (c fakeCatalog) CustomFields(_ context.Context, level string) ([]model.CustomField, error) {
	return c.fields[level], c.err
}

func (c fakeCatalog) Programs(context.Context) ([]model.Choice, error) {
	return []model.Choice{{Value: "1", Label: "Nursing"}, {Value: "2", Label: "Welding"}}, c.err
}

func (c fakeCatalog) ProgramCourses(context.Context) (map[string][]model.Choice, error) {
	return map[string][]model.Choice{
		"1": {{Value: "11", Label: "Anatomy"}, {Value: "12", Label: "Pharmacology"}},
		"2": {{Value: "12", Label: "Pharmacology"}, {Value: "13", Label: "Metallurgy"}, {Value: "14", Label: "Safety"}},
	}, c.err
}

func testEnv() Env {
	return Env{Catalog: fakeCatalog{fields: map[string][]model.CustomField{
		LevelCourse: {{ID: 5, Shortname: "hours", Name: "Hours", DataType: model.CustomFieldInt}},
	}}}
}

func openHostDB(t *testing.T) *datatable.Engine {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(hostSchema)
	require.NoError(t, err)
	return datatable.NewEngine(db, query.SQLite, nil)
}

func runListing(t *testing.T, e *datatable.Engine, kind string, p Params, filters string) *datatable.Response {
	t.Helper()
	def, err := Build(context.Background(), kind, testEnv(), p)
	require.NoError(t, err)
	tbl, err := datatable.Prepare(def, datatable.Options{})
	require.NoError(t, err)
	raw, err := model.ParseRawFilterSet(filters)
	require.NoError(t, err)
	resp, err := e.Run(context.Background(), tbl, datatable.Request{Filters: raw, Page: 1})
	require.NoError(t, err)
	return resp
}

func headers(resp *datatable.Response) []string {
	var out []string
	for _, r := range resp.Children {
		out = append(out, r.Header)
	}
	return out
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{
		"course_classes", "courseset_courses", "program_courses", "program_coursesets",
		"program_tracks", "programs", "user_classes", "users",
	}, Kinds())
	assert.True(t, Known("users"))
	assert.False(t, Known("../users"))
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := Build(context.Background(), "datatable_base", testEnv(), nil)
	assert.ErrorIs(t, err, datatable.ErrUnknownListing)
}

func TestBuild_Params(t *testing.T) {
	for _, p := range []Params{nil, {"courseid": ""}, {"courseid": "abc"}, {"courseid": "-4"}, {"courseid": "0"}} {
		_, err := Build(context.Background(), "course_classes", testEnv(), p)
		assert.ErrorIs(t, err, ErrInvalidParam, "%v", p)
	}
}

func TestBuild_CatalogError(t *testing.T) {
	env := Env{Catalog: fakeCatalog{err: errors.New("db down")}}
	_, err := Build(context.Background(), "users", env, nil)
	assert.ErrorContains(t, err, "db down")
}

func TestBuild_DefaultsCapability(t *testing.T) {
	def, err := Build(context.Background(), "programs", testEnv(), nil)
	require.NoError(t, err)
	assert.Equal(t, "programs", def.Kind)
	assert.Equal(t, DefaultCapability, def.Capability)

	def, err = Build(context.Background(), "user_classes", testEnv(), Params{"userid": "7"})
	require.NoError(t, err)
	assert.Equal(t, "datatable:viewuser", def.Capability)
}

func TestScopeOf(t *testing.T) {
	params := Params{"programid": "1", "coursesetid": "21", "courseid": "11", "userid": "7"}
	for _, tc := range []struct {
		kind string
		want Scope
	}{
		{"programs", Scope{Capability: DefaultCapability, Level: LevelSystem, ContextLevel: LevelProgram}},
		{"program_courses", Scope{Capability: DefaultCapability, Level: LevelProgram, ID: 1, ContextLevel: LevelCourse}},
		{"courseset_courses", Scope{Capability: DefaultCapability, Level: LevelCourseset, ID: 21, ContextLevel: LevelCourse}},
		{"program_coursesets", Scope{Capability: DefaultCapability, Level: LevelProgram, ID: 1, ContextLevel: LevelCourseset}},
		{"program_tracks", Scope{Capability: DefaultCapability, Level: LevelProgram, ID: 1, ContextLevel: LevelTrack}},
		{"course_classes", Scope{Capability: DefaultCapability, Level: LevelCourse, ID: 11, ContextLevel: LevelClass}},
		{"users", Scope{Capability: DefaultCapability, Level: LevelSystem, ContextLevel: LevelUser}},
		{"user_classes", Scope{Capability: "datatable:viewuser", Level: LevelUser, ID: 7, ContextLevel: LevelClass}},
	} {
		t.Run(tc.kind, func(t *testing.T) {
			got, err := ScopeOf(tc.kind, params)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			def, err := Build(context.Background(), tc.kind, testEnv(), params)
			require.NoError(t, err)
			assert.Equal(t, got.ID, def.ContextID)
			assert.Equal(t, got.ContextLevel, def.ContextLevel)
		})
	}

	_, err := ScopeOf("courseset_courses", Params{"programid": "21"})
	assert.ErrorIs(t, err, ErrInvalidParam)
	_, err = ScopeOf("nope", nil)
	assert.ErrorIs(t, err, datatable.ErrUnknownListing)
}

func TestAllListingsExecute(t *testing.T) {
	e := openHostDB(t)
	params := Params{"programid": "1", "coursesetid": "21", "courseid": "11", "userid": "7"}
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			resp := runListing(t, e, kind, params, `{}`)
			assert.NotZero(t, resp.TotalResults)
			assert.Len(t, resp.Children, resp.TotalResults)
		})
	}
}

func TestCoursesetCourses(t *testing.T) {
	e := openHostDB(t)

	resp := runListing(t, e, "courseset_courses", Params{"coursesetid": "21"}, `{}`)
	assert.Equal(t, 2, resp.TotalResults)
	assert.Equal(t, []string{"Anatomy", "Pharmacology"}, headers(resp))

	resp = runListing(t, e, "courseset_courses", Params{"coursesetid": "22"}, `{}`)
	assert.Equal(t, []string{"Metallurgy", "Safety"}, headers(resp))
}

func TestProgramCoursesCustomField(t *testing.T) {
	e := openHostDB(t)

	resp := runListing(t, e, "program_courses", Params{"programid": "1"}, `{"cf_hours":[40]}`)
	assert.Equal(t, []string{"Anatomy"}, headers(resp))
	assert.Contains(t, resp.Fields.Visible, "cf_hours")
	assert.EqualValues(t, 40, resp.Children[0].Fields["cf_hours"])
}

func TestProgramCoursesetsCountsCourses(t *testing.T) {
	e := openHostDB(t)

	resp := runListing(t, e, "program_coursesets", Params{"programid": "2"}, `{}`)
	require.Len(t, resp.Children, 1)
	assert.Equal(t, "Shop", resp.Children[0].Header)
	assert.EqualValues(t, 2, resp.Children[0].Fields["courses"])
}

func TestUserClassesStatus(t *testing.T) {
	e := openHostDB(t)
	p := Params{"userid": "7"}

	all := runListing(t, e, "user_classes", p, `{}`)
	assert.Equal(t, 5, all.TotalResults)

	enrolled := runListing(t, e, "user_classes", p, `{"status":["enrolled"]}`)
	assert.ElementsMatch(t, []string{"ANA-1", "PHA-1"}, headers(enrolled))

	either := runListing(t, e, "user_classes", p, `{"status":["enrolled","waitlisted"]}`)
	assert.ElementsMatch(t, []string{"ANA-1", "ANA-2", "PHA-1"}, headers(either))

	bogus := runListing(t, e, "user_classes", p, `{"status":["bogus"]}`)
	assert.Equal(t, all.TotalResults, bogus.TotalResults, "an invalid status behaves like no status filter")
	assert.Equal(t, headers(all), headers(bogus))
}

func TestUserClassesDependentCourse(t *testing.T) {
	e := openHostDB(t)
	p := Params{"userid": "8"}

	resp := runListing(t, e, "user_classes", p, `{"course":[{"parent":"2","child":"13"}]}`)
	assert.Equal(t, []string{"MET-1"}, headers(resp))

	// A child that does not belong to the chosen parent is rejected.
	resp = runListing(t, e, "user_classes", p, `{"course":[{"parent":"1","child":"13"}]}`)
	assert.Equal(t, 5, resp.TotalResults)
	assert.Equal(t, []string{"course"}, resp.Dropped)

	desc := resp.Filters["course"]
	data, err := json.Marshal(desc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"children"`)
}
