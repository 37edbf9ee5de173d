/*
Package cli is the front desk operator console.

MAIN MENU:
  1  register a student
  2  edit a registration
  3  reports
  0  exit

SELECTION LOOP (registration and edit):
  <id>      add the course
  del <id>  remove from the cart; in an edit, toggles cancellation of an
            active course
  F         finish selecting
  X         leave without saving

The console reads lines from any io.Reader and writes to any io.Writer, so
tests drive it with a scripted input. End of input leaves the console the
same way as X followed by 0.
*/
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/identity"
)

// Console runs the interactive operator menu.
type Console struct {
	ledger    *enrollment.Ledger
	catalog   enrollment.Catalog
	validator *identity.Validator
	logger    *zap.Logger

	in  *bufio.Scanner
	out io.Writer
}

// New creates a console.
func New(ledger *enrollment.Ledger, cat enrollment.Catalog, v *identity.Validator, in io.Reader, out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		ledger:    ledger,
		catalog:   cat,
		validator: v,
		logger:    logger,
		in:        bufio.NewScanner(in),
		out:       out,
	}
}

// Run shows the main menu until the operator exits or input ends.
func (c *Console) Run(ctx context.Context) error {
	for {
		c.println("")
		c.println(bold("MAIN MENU"))
		c.println("1. Register a student")
		c.println("2. Edit a registration")
		c.println("3. Reports")
		c.println("0. Exit")

		choice, err := c.prompt("Choose: ")
		if err != nil {
			return ignoreEOF(err)
		}

		switch choice {
		case "1":
			err = c.Register(ctx)
		case "2":
			err = c.Edit(ctx)
		case "3":
			err = c.Reports(ctx)
		case "0":
			c.println("Goodbye.")
			return nil
		default:
			c.println(errorLine("Unknown option."))
			continue
		}
		if err != nil {
			return ignoreEOF(err)
		}
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register walks one student through a registration session.
func (c *Console) Register(ctx context.Context) error {
	reg := enrollment.NewRegistration(c.ledger, c.catalog)

	for reg.State() == enrollment.StateSelecting {
		if err := c.showCourses(ctx, func(off enrollment.Offering) string {
			if reg.InCart(off.ID) {
				return cyan("[in cart]")
			}
			return ""
		}); err != nil {
			return c.storageFailure(err)
		}
		renderCart(c.out, reg.Cart(), c.catalog.Prices())

		input, err := c.prompt("Course id, 'del <id>' to remove, 'F' to finish, 'X' to exit: ")
		if err != nil {
			reg.Abort()
			return err
		}
		switch cmd, arg := parseCommand(input); cmd {
		case cmdExit:
			reg.Abort()
			c.println(warnLine("Registration cancelled, nothing saved."))
			return nil
		case cmdFinish:
			if err := reg.Finish(); err != nil {
				c.println(warnLine(err.Error()))
			}
		case cmdDelete:
			if off, err := reg.Remove(arg); err != nil {
				c.println(errorLine(err.Error()))
			} else {
				c.println(successLine("Removed " + off.Name))
			}
		default:
			off, err := reg.Select(ctx, arg)
			if err != nil {
				if enrollment.IsStorageFailure(err) {
					return c.storageFailure(err)
				}
				c.println(errorLine(err.Error()))
				continue
			}
			c.println(successLine("Added " + off.Name))
		}
	}

	key, err := c.askKey()
	if err != nil {
		reg.Abort()
		return err
	}
	if err := reg.Identify(ctx, key); err != nil {
		return c.resolveFailure(err)
	}

	inv, err := reg.Invoice()
	if err != nil {
		return err
	}
	renderInvoice(c.out, inv)

	contact, err := c.askContact()
	if err != nil {
		reg.Abort()
		return err
	}
	if err := reg.SetContact(contact); err != nil {
		return err
	}

	for {
		receipt, err := c.prompt("Receipt number ('X' to exit): ")
		if err != nil {
			reg.Abort()
			return err
		}
		if isExit(receipt) {
			reg.Abort()
			c.println(warnLine("Registration cancelled, nothing saved."))
			return nil
		}
		committed, err := reg.Pay(ctx, receipt)
		if err != nil {
			if enrollment.IsStorageFailure(err) {
				return c.storageFailure(err)
			}
			c.println(errorLine(err.Error()))
			continue
		}
		c.println(successLine(fmt.Sprintf("Registration saved: %d course(s) for %s.", len(committed), key)))
		return nil
	}
}

// =============================================================================
// EDIT
// =============================================================================

// Edit lets the operator cancel and add courses for an enrolled student.
func (c *Console) Edit(ctx context.Context) error {
	key, err := c.askKey()
	if err != nil {
		return err
	}
	edit, err := enrollment.OpenEdit(ctx, c.ledger, c.catalog, key)
	if err != nil {
		if enrollment.IsStorageFailure(err) {
			return c.storageFailure(err)
		}
		c.println(warnLine(err.Error()))
		return nil
	}

	for edit.State() == enrollment.StateSelecting {
		cancelled := make(map[string]bool)
		for _, ev := range edit.Cancelled() {
			cancelled[ev.CourseID] = true
		}
		if err := c.showCourses(ctx, func(off enrollment.Offering) string {
			switch {
			case cancelled[off.ID]:
				return red("[to cancel]")
			case edit.IsEnrolled(off.ID):
				return green("[active]")
			case edit.IsAdded(off.ID):
				return cyan("[to add]")
			}
			return ""
		}); err != nil {
			return c.storageFailure(err)
		}
		if len(cancelled) > 0 {
			names := make([]string, 0, len(cancelled))
			for _, ev := range edit.Cancelled() {
				names = append(names, ev.CourseName)
			}
			c.println(warnLine("Marked for cancellation: " + strings.Join(names, ", ")))
		}

		input, err := c.prompt("Course id to add, 'del <id>' to cancel/restore, 'F' to finish, 'X' to exit: ")
		if err != nil {
			edit.Abort()
			return err
		}
		switch cmd, arg := parseCommand(input); cmd {
		case cmdExit:
			edit.Abort()
			c.println(warnLine("Edit cancelled, nothing saved."))
			return nil
		case cmdFinish:
			changed, err := edit.Finish(ctx)
			if err != nil {
				return c.resolveFailure(err)
			}
			if !changed {
				c.println(warnLine("No changes made."))
				return nil
			}
		case cmdDelete:
			res, err := edit.Toggle(arg)
			if err != nil {
				c.println(errorLine(err.Error()))
				continue
			}
			c.println(successLine(toggleMessage(res, arg)))
		default:
			off, err := edit.Add(ctx, arg)
			if err != nil {
				if enrollment.IsStorageFailure(err) {
					return c.storageFailure(err)
				}
				c.println(errorLine(err.Error()))
				continue
			}
			if edit.IsEnrolled(off.ID) {
				c.println(successLine("Will keep " + off.Name))
				continue
			}
			c.println(successLine("Will add " + off.Name))
		}
	}

	c.println(fmt.Sprintf("Active before edit: %d, cancelled: %d, added: %d",
		len(edit.Active()), len(edit.Cancelled()), len(edit.Added())))
	inv, err := edit.Invoice()
	if err != nil {
		return err
	}
	renderInvoice(c.out, inv)

	contact, err := c.askContact()
	if err != nil {
		edit.Abort()
		return err
	}
	if err := edit.SetContact(contact); err != nil {
		return err
	}

	for {
		receipt := ""
		if edit.NeedsReceipt() {
			receipt, err = c.prompt("Receipt number for the new courses ('X' to exit): ")
			if err != nil {
				edit.Abort()
				return err
			}
			if isExit(receipt) {
				edit.Abort()
				c.println(warnLine("Edit cancelled, nothing saved."))
				return nil
			}
		}
		committed, err := edit.Commit(ctx, receipt)
		if err != nil {
			if enrollment.IsStorageFailure(err) {
				return c.storageFailure(err)
			}
			c.println(errorLine(err.Error()))
			if !edit.NeedsReceipt() {
				edit.Abort()
				return nil
			}
			continue
		}
		c.println(successLine(fmt.Sprintf("Changes saved: %d record(s) written.", len(committed))))
		return nil
	}
}

// =============================================================================
// REPORTS
// =============================================================================

// Reports shows the administrative reports menu.
func (c *Console) Reports(ctx context.Context) error {
	for {
		c.println("")
		c.println(bold("REPORTS"))
		c.println("1. Course occupancy")
		c.println("2. Active students")
		c.println("0. Back")

		choice, err := c.prompt("Choose: ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			report, err := enrollment.BuildOccupancyReport(ctx, c.ledger.State(), c.catalog)
			if err != nil {
				return c.storageFailure(err)
			}
			renderOccupancy(c.out, report)
		case "2":
			report, err := enrollment.BuildStudentsReport(ctx, c.ledger.State())
			if err != nil {
				return c.storageFailure(err)
			}
			renderStudents(c.out, report)
		case "0":
			return nil
		default:
			c.println(errorLine("Unknown option."))
		}
	}
}

// =============================================================================
// PROMPTS
// =============================================================================

func (c *Console) showCourses(ctx context.Context, m mark) error {
	avail, err := enrollment.ListAvailability(ctx, c.ledger.State(), c.catalog)
	if err != nil {
		return err
	}
	c.println("")
	renderCourses(c.out, avail, m)
	return nil
}

func (c *Console) askKey() (enrollment.StudentKey, error) {
	c.println(bold("Student identity"))
	name, err := c.askValid("Name: ", func(s string) (string, error) { return c.validator.NamePart("name", s) })
	if err != nil {
		return enrollment.StudentKey{}, err
	}
	surname, err := c.askValid("Surname: ", func(s string) (string, error) { return c.validator.NamePart("surname", s) })
	if err != nil {
		return enrollment.StudentKey{}, err
	}
	father, err := c.askValid("Father's name: ", func(s string) (string, error) { return c.validator.NamePart("father's name", s) })
	if err != nil {
		return enrollment.StudentKey{}, err
	}
	return enrollment.StudentKey{Name: name, Surname: surname, FatherName: father}, nil
}

func (c *Console) askContact() (enrollment.Contact, error) {
	phone, err := c.askValid("Mobile number (9 digits): ", c.validator.Phone)
	if err != nil {
		return enrollment.Contact{}, err
	}
	email, err := c.askValid("Email: ", c.validator.Email)
	if err != nil {
		return enrollment.Contact{}, err
	}
	return enrollment.Contact{Phone: phone, Email: email}, nil
}

// askValid repeats the prompt until check accepts the answer.
func (c *Console) askValid(label string, check func(string) (string, error)) (string, error) {
	for {
		raw, err := c.prompt(label)
		if err != nil {
			return "", err
		}
		v, err := check(raw)
		if err == nil {
			return v, nil
		}
		c.println(errorLine(err.Error()))
	}
}

func (c *Console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) println(s string) { fmt.Fprintln(c.out, s) }

// resolveFailure reports why a session was aborted after identification.
func (c *Console) resolveFailure(err error) error {
	if enrollment.IsStorageFailure(err) {
		return c.storageFailure(err)
	}
	var resolveErr *enrollment.ResolveError
	if errors.As(err, &resolveErr) {
		c.println(errorLine("The selection conflicts with the student's current enrollments:"))
		for _, p := range resolveErr.Problems {
			c.println("  - " + p.Error())
		}
		c.println(warnLine("Session cancelled, nothing saved."))
		return nil
	}
	c.println(errorLine(err.Error()))
	return nil
}

// storageFailure reports an unreadable or unwritable ledger and returns to
// the main menu.
func (c *Console) storageFailure(err error) error {
	c.logger.Error("ledger storage failure", zap.Error(err))
	c.println(errorLine("The registry could not be accessed: " + err.Error()))
	return nil
}

// =============================================================================
// COMMAND PARSING
// =============================================================================

type command int

const (
	cmdSelect command = iota
	cmdDelete
	cmdFinish
	cmdExit
)

func parseCommand(input string) (command, string) {
	input = strings.TrimSpace(input)
	switch {
	case strings.EqualFold(input, "f"):
		return cmdFinish, ""
	case isExit(input):
		return cmdExit, ""
	case strings.HasPrefix(strings.ToLower(input), "del "):
		return cmdDelete, strings.TrimSpace(input[4:])
	default:
		return cmdSelect, input
	}
}

func isExit(input string) bool { return strings.EqualFold(strings.TrimSpace(input), "x") }

func toggleMessage(res enrollment.ToggleResult, id string) string {
	switch res {
	case enrollment.ToggleDroppedAddition:
		return "Removed course " + id + " from additions"
	case enrollment.ToggleMarkedCancel:
		return "Course " + id + " marked for cancellation"
	default:
		return "Course " + id + " restored"
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
