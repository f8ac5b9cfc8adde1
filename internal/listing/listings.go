package listing

import (
	"context"
	"strconv"

	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/filter"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Context levels. They select custom fields and visibility configuration,
// and scope capability grants.
const (
	LevelSystem    = "system"
	LevelProgram   = "program"
	LevelCourse    = "course"
	LevelCourseset = "courseset"
	LevelTrack     = "track"
	LevelClass     = "class"
	LevelUser      = "user"
)

// exists returns a predicate requiring a row in sub, where sub ends with a
// comparison awaiting v.
func exists(sub string, v any) datatable.Predicate {
	return func(args *query.Args) string {
		return "EXISTS (" + sub + " " + args.Add(v) + ")"
	}
}

func text(name, label string, columns ...string) filter.Filter {
	return filter.NewText(filter.Meta{Name: name, Label: label}, columns...)
}

func programs(ctx context.Context, env Env, _ Params) (datatable.Listing, error) {
	cf, err := env.customFields(ctx, LevelProgram, "p.id")
	if err != nil {
		return datatable.Listing{}, err
	}
	return datatable.Listing{
		Table:  "programs",
		Alias:  "p",
		Header: "p.name",
		Columns: []datatable.Column{
			{Name: "name", Label: "Name", Expr: "p.name", Fixed: true, Sortable: true},
			{Name: "idnumber", Label: "ID number", Expr: "p.idnumber", Sortable: true},
			{Name: "description", Label: "Description", Expr: "p.description"},
			{Name: "timecreated", Label: "Created", Expr: "p.timecreated", Sortable: true},
		},
		DefaultSort: "name",
		PerPage:     20,
		Filters: []filter.Filter{
			text("name", "Name", "p.name"),
			text("idnumber", "ID number", "p.idnumber"),
			filter.NewText(filter.Meta{Name: "description", Label: "Description", Advanced: true}, "p.description"),
			filter.NewDate(filter.Meta{Name: "timecreated", Label: "Created", Advanced: true}, "p.timecreated", env.loc()),
		},
		CustomFields: cf,
	}, nil
}

// courseListing is the shared shape of listings whose rows are courses.
func courseListing(ctx context.Context, env Env, scope datatable.Predicate) (datatable.Listing, error) {
	cf, err := env.customFields(ctx, LevelCourse, "c.id")
	if err != nil {
		return datatable.Listing{}, err
	}
	return datatable.Listing{
		Table:  "courses",
		Alias:  "c",
		Header: "c.fullname",
		Columns: []datatable.Column{
			{Name: "fullname", Label: "Full name", Expr: "c.fullname", Fixed: true, Sortable: true},
			{Name: "shortname", Label: "Short name", Expr: "c.shortname", Sortable: true},
			{Name: "idnumber", Label: "ID number", Expr: "c.idnumber", Sortable: true},
			{Name: "startdate", Label: "Start date", Expr: "c.startdate", Sortable: true},
			{Name: "credits", Label: "Credits", Expr: "c.credits", Sortable: true},
		},
		Predicates:  []datatable.Predicate{scope},
		DefaultSort: "fullname",
		PerPage:     20,
		Filters: []filter.Filter{
			filter.NewText(filter.Meta{Name: "fullname", Label: "Name"}, "c.fullname", "c.shortname"),
			text("idnumber", "ID number", "c.idnumber"),
			filter.NewDate(filter.Meta{Name: "startdate", Label: "Start date"}, "c.startdate", env.loc()),
			filter.NewNumeric(filter.Meta{Name: "credits", Label: "Credits", Advanced: true}, "c.credits"),
		},
		CustomFields: cf,
	}, nil
}

func programCourses(ctx context.Context, env Env, p Params) (datatable.Listing, error) {
	id, err := p.ID("programid")
	if err != nil {
		return datatable.Listing{}, err
	}
	return courseListing(ctx, env,
		exists("SELECT 1 FROM program_courses pc WHERE pc.courseid = c.id AND pc.programid =", id))
}

func coursesetCourses(ctx context.Context, env Env, p Params) (datatable.Listing, error) {
	id, err := p.ID("coursesetid")
	if err != nil {
		return datatable.Listing{}, err
	}
	return courseListing(ctx, env,
		exists("SELECT 1 FROM courseset_courses csc WHERE csc.courseid = c.id AND csc.coursesetid =", id))
}

func programCoursesets(_ context.Context, _ Env, p Params) (datatable.Listing, error) {
	id, err := p.ID("programid")
	if err != nil {
		return datatable.Listing{}, err
	}
	return datatable.Listing{
		Table:  "coursesets",
		Alias:  "cs",
		Header: "cs.name",
		Columns: []datatable.Column{
			{Name: "name", Label: "Name", Expr: "cs.name", Fixed: true, Sortable: true},
			{Name: "idnumber", Label: "ID number", Expr: "cs.idnumber", Sortable: true},
			{Name: "courses", Label: "Courses", Expr: "COUNT(DISTINCT csc.courseid)", Aggregate: true, Sortable: true},
		},
		Joins: []query.Join{{Alias: "csc", SQL: "LEFT JOIN courseset_courses csc ON csc.coursesetid = cs.id"}},
		Predicates: []datatable.Predicate{
			exists("SELECT 1 FROM program_coursesets pcs WHERE pcs.coursesetid = cs.id AND pcs.programid =", id),
		},
		GroupBy:     true,
		DefaultSort: "name",
		PerPage:     20,
		Filters: []filter.Filter{
			text("name", "Name", "cs.name"),
			text("idnumber", "ID number", "cs.idnumber"),
		},
	}, nil
}

func programTracks(ctx context.Context, env Env, p Params) (datatable.Listing, error) {
	id, err := p.ID("programid")
	if err != nil {
		return datatable.Listing{}, err
	}
	cf, err := env.customFields(ctx, LevelTrack, "tr.id")
	if err != nil {
		return datatable.Listing{}, err
	}
	return datatable.Listing{
		Table:  "tracks",
		Alias:  "tr",
		Header: "tr.name",
		Columns: []datatable.Column{
			{Name: "name", Label: "Name", Expr: "tr.name", Fixed: true, Sortable: true},
			{Name: "idnumber", Label: "ID number", Expr: "tr.idnumber", Sortable: true},
			{Name: "startdate", Label: "Start date", Expr: "tr.startdate", Sortable: true},
			{Name: "enddate", Label: "End date", Expr: "tr.enddate", Sortable: true},
		},
		Predicates:  []datatable.Predicate{datatable.Equals("tr.programid", id)},
		DefaultSort: "name",
		PerPage:     20,
		Filters: []filter.Filter{
			text("name", "Name", "tr.name"),
			text("idnumber", "ID number", "tr.idnumber"),
			filter.NewDate(filter.Meta{Name: "startdate", Label: "Start date"}, "tr.startdate", env.loc()),
			filter.NewDate(filter.Meta{Name: "enddate", Label: "End date", Advanced: true}, "tr.enddate", env.loc()),
		},
		CustomFields: cf,
	}, nil
}

func courseClasses(ctx context.Context, env Env, p Params) (datatable.Listing, error) {
	id, err := p.ID("courseid")
	if err != nil {
		return datatable.Listing{}, err
	}
	cf, err := env.customFields(ctx, LevelClass, "cls.id")
	if err != nil {
		return datatable.Listing{}, err
	}
	return datatable.Listing{
		Table:  "classes",
		Alias:  "cls",
		Header: "cls.idnumber",
		Columns: []datatable.Column{
			{Name: "idnumber", Label: "ID number", Expr: "cls.idnumber", Fixed: true, Sortable: true},
			{Name: "startdate", Label: "Start date", Expr: "cls.startdate", Fixed: true, Sortable: true},
			{Name: "enddate", Label: "End date", Expr: "cls.enddate", Sortable: true},
			{Name: "maxstudents", Label: "Capacity", Expr: "cls.maxstudents", Sortable: true},
			{Name: "enrolled", Label: "Enrolled", Expr: "COUNT(DISTINCT ce.userid)", Aggregate: true, Sortable: true},
		},
		Joins:       []query.Join{{Alias: "ce", SQL: "LEFT JOIN class_enrolments ce ON ce.classid = cls.id"}},
		Predicates:  []datatable.Predicate{datatable.Equals("cls.courseid", id)},
		GroupBy:     true,
		DefaultSort: "startdate",
		PerPage:     20,
		Filters: []filter.Filter{
			text("idnumber", "ID number", "cls.idnumber"),
			filter.NewDate(filter.Meta{Name: "startdate", Label: "Start date"}, "cls.startdate", env.loc()),
			filter.NewDate(filter.Meta{Name: "enddate", Label: "End date", Advanced: true}, "cls.enddate", env.loc()),
			filter.NewNumeric(filter.Meta{Name: "maxstudents", Label: "Capacity", Advanced: true}, "cls.maxstudents"),
		},
		CustomFields: cf,
	}, nil
}

func users(ctx context.Context, env Env, _ Params) (datatable.Listing, error) {
	cf, err := env.customFields(ctx, LevelUser, "u.id")
	if err != nil {
		return datatable.Listing{}, err
	}
	fullname := "u.firstname || ' ' || u.lastname"
	return datatable.Listing{
		Table:  "users",
		Alias:  "u",
		Header: fullname,
		Columns: []datatable.Column{
			{Name: "fullname", Label: "Name", Expr: fullname, Fixed: true, Sortable: true},
			{Name: "email", Label: "Email", Expr: "u.email", Sortable: true},
			{Name: "country", Label: "Country", Expr: "u.country", Sortable: true},
			{Name: "city", Label: "City", Expr: "u.city", Sortable: true},
			{Name: "timecreated", Label: "Created", Expr: "u.timecreated", Sortable: true},
		},
		DefaultSort: "fullname",
		PerPage:     20,
		Filters: []filter.Filter{
			filter.NewText(filter.Meta{Name: "fullname", Label: "Name"}, "u.firstname", "u.lastname"),
			text("email", "Email", "u.email"),
			filter.NewText(filter.Meta{Name: "country", Label: "Country", Advanced: true}, "u.country"),
			filter.NewText(filter.Meta{Name: "city", Label: "City", Advanced: true}, "u.city"),
			filter.NewDate(filter.Meta{Name: "timecreated", Label: "Created", Advanced: true}, "u.timecreated", env.loc()),
		},
		CustomFields: cf,
	}, nil
}

// Enrolment states of a class relative to one user.
var statusChoices = []model.Choice{
	{Value: "enrolled", Label: "Enrolled"},
	{Value: "waitlisted", Label: "Waitlisted"},
	{Value: "available", Label: "Available"},
}

const statusExpr = "CASE WHEN ue.id IS NOT NULL THEN 'enrolled' WHEN wl.id IS NOT NULL THEN 'waitlisted' ELSE 'available' END"

func userClasses(ctx context.Context, env Env, p Params) (datatable.Listing, error) {
	id, err := p.ID("userid")
	if err != nil {
		return datatable.Listing{}, err
	}
	programs, err := env.Catalog.Programs(ctx)
	if err != nil {
		return datatable.Listing{}, err
	}
	courses, err := env.Catalog.ProgramCourses(ctx)
	if err != nil {
		return datatable.Listing{}, err
	}
	cf, err := env.customFields(ctx, LevelClass, "cls.id")
	if err != nil {
		return datatable.Listing{}, err
	}
	// The user id is a parsed integer and is inlined into the join condition.
	uid := strconv.FormatInt(id, 10)
	return datatable.Listing{
		Table:  "classes",
		Alias:  "cls",
		Header: "cls.idnumber",
		Columns: []datatable.Column{
			{Name: "idnumber", Label: "ID number", Expr: "cls.idnumber", Fixed: true, Sortable: true},
			{Name: "course", Label: "Course", Expr: "c.fullname", Fixed: true, Sortable: true},
			{Name: "startdate", Label: "Start date", Expr: "cls.startdate", Sortable: true},
			{Name: "enddate", Label: "End date", Expr: "cls.enddate", Sortable: true},
			{Name: "status", Label: "Status", Expr: statusExpr, Fixed: true, Sortable: true},
		},
		Joins: []query.Join{
			{Alias: "c", SQL: "JOIN courses c ON c.id = cls.courseid"},
			{Alias: "ue", SQL: "LEFT JOIN class_enrolments ue ON ue.classid = cls.id AND ue.userid = " + uid},
			{Alias: "wl", SQL: "LEFT JOIN waitlist wl ON wl.classid = cls.id AND wl.userid = " + uid},
		},
		DefaultSort: "startdate",
		PerPage:     20,
		Filters: []filter.Filter{
			text("idnumber", "ID number", "cls.idnumber"),
			filter.NewMenu(filter.Meta{Name: "status", Label: "Status"}, statusExpr, statusChoices),
			filter.NewDependentSelect(filter.Meta{Name: "course", Label: "Course"}, "cls.courseid", programs, courses),
			filter.NewDate(filter.Meta{Name: "startdate", Label: "Start date"}, "cls.startdate", env.loc()),
		},
		CustomFields: cf,
	}, nil
}
