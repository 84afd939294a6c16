package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/service"
	"github.com/noah-isme/scc-sat-api/pkg/config"
)

type cli struct {
	ledger   *service.LedgerService
	seats    *service.SequenceService
	exporter *service.ExportService
	year     string
	backend  string
	out      io.Writer
}

func (c *cli) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "list":
		return c.list(args)
	case "stats":
		return c.stats(ctx)
	case "seat":
		return c.seat(ctx, args)
	case "attendance":
		return c.attendance(ctx, args)
	case "export":
		return c.export(args)
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", command, usage)
}

func queryFlags(name string) (*flag.FlagSet, *string, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	attendance := fs.String("attendance", "", "attendance status filter")
	sortField := fs.String("sort", "", "sort field, e.g. seatNumber or fullName")
	order := fs.String("order", "asc", "asc or desc")
	return fs, attendance, sortField, order
}

func buildQuery(search, attendance, sortField, order string) (models.LedgerFilter, models.LedgerSort, error) {
	filter := models.LedgerFilter{Search: search, Attendance: models.AttendanceStatus(attendance)}
	if filter.Attendance != "" && filter.Attendance != models.AttendanceAll && !filter.Attendance.Valid() {
		return filter, models.LedgerSort{}, fmt.Errorf("unknown attendance status %q", attendance)
	}
	if sortField != "" && !service.ValidSortField(sortField) {
		return filter, models.LedgerSort{}, fmt.Errorf("unknown sort field %q", sortField)
	}
	if order != string(models.SortAsc) && order != string(models.SortDesc) {
		return filter, models.LedgerSort{}, fmt.Errorf("order must be asc or desc")
	}
	return filter, models.LedgerSort{Field: sortField, Order: models.SortOrder(order)}, nil
}

func (c *cli) list(args []string) error {
	fs, attendance, sortField, order := queryFlags("list")
	fs.SetOutput(c.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter, sort, err := buildQuery(fs.Arg(0), *attendance, *sortField, *order)
	if err != nil {
		return err
	}

	records := slices.Collect(c.ledger.List(filter, sort))
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Seat Number", "Name", "Mobile", "Location", "Attendance", "Referred By"})
	for _, r := range records {
		referredBy := ""
		if r.ReferralCode != "" {
			referredBy = c.ledger.ResolveReferrer(r.ReferralCode)
		}
		table.Append([]string{
			r.SeatNumber,
			r.FullName,
			r.Mobile,
			string(r.Location),
			string(r.Attendance.OrPending()),
			referredBy,
		})
	}
	table.Render()
	color.New(color.FgCyan).Fprintf(c.out, "%d registration(s)\n", len(records))
	return nil
}

func (c *cli) stats(ctx context.Context) error {
	stats, err := c.ledger.Stats(ctx)
	if err != nil {
		return err
	}

	color.New(color.FgYellow).Fprintln(c.out, "Registrations by branch")
	branches := tablewriter.NewWriter(c.out)
	branches.SetHeader([]string{"Branch", "Count"})
	for _, center := range []models.Center{models.CenterSatpur, models.CenterMeri} {
		branches.Append([]string{string(center), strconv.Itoa(stats.ByCenter[center])})
	}
	branches.SetFooter([]string{"Total", strconv.Itoa(stats.Total)})
	branches.Render()

	color.New(color.FgYellow).Fprintln(c.out, "Attendance")
	attendance := tablewriter.NewWriter(c.out)
	attendance.SetHeader([]string{"Status", "Count"})
	for _, status := range []models.AttendanceStatus{models.AttendancePresent, models.AttendanceAbsent, models.AttendanceLate, models.AttendancePending} {
		attendance.Append([]string{string(status), strconv.Itoa(stats.ByAttendance[status])})
	}
	attendance.Render()

	fmt.Fprintf(c.out, "Referred registrations: %d\n", stats.Referred)
	return nil
}

func (c *cli) seat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seat", flag.ContinueOnError)
	fs.SetOutput(c.out)
	year := fs.String("year", c.year, "exam year")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := strconv.Atoi(*year); err != nil || len(*year) != 4 {
		return fmt.Errorf("year must be four digits, got %q", *year)
	}
	if c.backend == config.BackendMemory {
		return errors.New("seat needs a shared backend; the memory backend's counter dies with this process")
	}

	issued := c.seats.NextSeatNumber(ctx, *year)
	if !issued.Guaranteed() {
		color.New(color.FgYellow).Fprintln(c.out, "seat counter unavailable, this number is not guaranteed unique")
	}
	color.New(color.FgGreen).Fprintln(c.out, issued.SeatNumber)
	return nil
}

// attendance rewrites the stored snapshot, which a running API server would overwrite
// with its own copy on its next write, so the operator must confirm the server is down.
func (c *cli) attendance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("attendance", flag.ContinueOnError)
	fs.SetOutput(c.out)
	offline := fs.Bool("offline", false, "confirm the API server is stopped")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: ledgerctl attendance -offline <seat> <status>")
	}
	if !*offline {
		return errors.New("attendance edits are lost if the API server is running; stop it and pass -offline, or use PATCH /admin/registrations/:seat/attendance")
	}
	args = fs.Args()
	result, err := c.ledger.UpdateAttendance(ctx, args[0], models.AttendanceStatus(args[1]))
	if err != nil {
		return err
	}
	switch {
	case !result.Found:
		color.New(color.FgYellow).Fprintf(c.out, "no registration with seat %s\n", args[0])
	case !result.Durable:
		color.New(color.FgRed).Fprintf(c.out, "%s marked %s but the change was not saved\n", args[0], args[1])
	default:
		color.New(color.FgGreen).Fprintf(c.out, "%s marked %s\n", args[0], args[1])
	}
	return nil
}

func (c *cli) export(args []string) error {
	fs, attendance, sortField, order := queryFlags("export")
	fs.SetOutput(c.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := fs.Arg(0)
	if path == "" {
		path = c.exporter.Filename(models.ExportFormatCSV)
	}
	filter, sort, err := buildQuery("", *attendance, *sortField, *order)
	if err != nil {
		return err
	}

	payload, rows, err := c.exporter.CSV(filter, sort)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	color.New(color.FgGreen).Fprintf(c.out, "wrote %d row(s) to %s\n", rows, path)
	return nil
}
