package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/warp/enrollment-engine/enrollment"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorLine(msg string) string   { return red("✗ " + msg) }
func successLine(msg string) string { return green("✓ " + msg) }
func warnLine(msg string) string    { return yellow("! " + msg) }

// mark is the status column shown next to an offering.
type mark func(off enrollment.Offering) string

func availabilityIcon(a enrollment.Availability) string {
	switch {
	case a.Full():
		return red("full")
	case a.Available <= 2:
		return yellow("few left")
	default:
		return green("open")
	}
}

// renderCourses prints the catalog with occupancy and a per-offering marker.
func renderCourses(w io.Writer, avail []enrollment.Availability, m mark) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, bold("ID\tCOURSE\tTIME\tSEATS\tSTATUS\t"))
	for _, a := range avail {
		note := ""
		if m != nil {
			note = m(a.Offering)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s %s\t\n",
			a.Offering.ID, a.Offering.Name, a.Offering.TimeDisplay,
			a.Available, a.Offering.Capacity, availabilityIcon(a), note)
	}
	tw.Flush()
}

// renderCart prints the cart priced at its own size, as the front desk
// quotes a cart before the student is identified.
func renderCart(w io.Writer, cart []enrollment.Offering, prices enrollment.PriceTable) {
	if len(cart) == 0 {
		fmt.Fprintln(w, gray("Cart is empty."))
		return
	}
	q := prices.Price(len(cart))
	fmt.Fprintln(w, bold("Cart:"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOURSE\tPRICE\tDISCOUNT\tTO PAY\t")
	for _, off := range cart {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t\n", off.ID, off.Name, money(q.Base), q.DiscountPercent, money(q.PerSubject))
	}
	tw.Flush()
	total := q.PerSubject.Mul(decimal.NewFromInt(int64(len(cart))))
	fmt.Fprintf(w, "Total: %s\n", bold(money(total)))
}

func renderInvoice(w io.Writer, inv enrollment.Invoice) {
	fmt.Fprintf(w, "Already enrolled: %d subject(s)\n", inv.Prior)
	fmt.Fprintf(w, "Adding: %d subject(s)\n", inv.Added)
	fmt.Fprintf(w, "Discount for %d subjects: %d%%\n", inv.SubjectCount, inv.DiscountPercent)
	fmt.Fprintf(w, "Price per subject: %s\n", money(inv.PerSubject))
	fmt.Fprintf(w, "%s %s\n", bold("Amount due:"), bold(money(inv.Total)))
}

func renderOccupancy(w io.Writer, report []enrollment.CourseOccupancy) {
	fmt.Fprintln(w, bold("COURSE OCCUPANCY REPORT"))
	for _, c := range report {
		fmt.Fprintf(w, "\n%s %s  [%s]  occupied %d/%d, free %d\n",
			cyan(c.Offering.ID), bold(c.Offering.Name), c.Offering.TimeDisplay,
			c.Occupied, c.Offering.Capacity, c.Available)
		if len(c.Groups) == 0 {
			fmt.Fprintln(w, gray("  no active students"))
			continue
		}
		for _, g := range c.Groups {
			fmt.Fprintf(w, "  time keys: %s\n", g.TimeKeys.String())
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			for i, s := range g.Students {
				fmt.Fprintf(tw, "    %d.\t%s %s\t(%s)\t%s\t\n", i+1, s.Student.Name, s.Student.Surname, s.Student.FatherName, s.Contact.Phone)
			}
			tw.Flush()
		}
	}
}

func renderStudents(w io.Writer, report []enrollment.StudentEnrollments) {
	fmt.Fprintln(w, bold("ACTIVE STUDENTS REPORT"))
	if len(report) == 0 {
		fmt.Fprintln(w, gray("No active students."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSURNAME\tFATHER'S NAME\tPHONE\tEMAIL\tCOURSES\t")
	for _, s := range report {
		names := make([]string, len(s.Courses))
		for i, ev := range s.Courses {
			names[i] = fmt.Sprintf("%s [%s]", ev.CourseName, ev.ReceiptID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Student.Name, s.Student.Surname, s.Student.FatherName,
			s.Contact.Phone, s.Contact.Email, strings.Join(names, ", "))
	}
	tw.Flush()
	fmt.Fprintf(w, "Students: %d\n", len(report))
}

// PrintOccupancy writes the course occupancy report to w.
func PrintOccupancy(ctx context.Context, w io.Writer, ledger *enrollment.Ledger, cat enrollment.Catalog) error {
	report, err := enrollment.BuildOccupancyReport(ctx, ledger.State(), cat)
	if err != nil {
		return err
	}
	renderOccupancy(w, report)
	return nil
}

// PrintStudents writes the active students report to w.
func PrintStudents(ctx context.Context, w io.Writer, ledger *enrollment.Ledger) error {
	report, err := enrollment.BuildStudentsReport(ctx, ledger.State())
	if err != nil {
		return err
	}
	renderStudents(w, report)
	return nil
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
