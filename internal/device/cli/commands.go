package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/device/services"
	"github.com/avolkov/seedtrack/internal/workflow"
)

func (a *App) login(ctx context.Context) {
	username, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil || username == "" {
		fmt.Fprintln(a.out, "Login cancelled")
		return
	}
	password, err := GetPassword(a.out)
	if err != nil {
		fmt.Fprintln(a.out, "Login cancelled")
		return
	}
	defer common.WipeByteArray(password)

	if err := a.session.Login(ctx, username, string(password)); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			fmt.Fprintln(a.out, "Invalid credentials")
		} else {
			fmt.Fprintf(a.out, "Login failed: %v\n", err)
		}
		return
	}
	a.userName = username
	a.remote.SetActor(username)
	fmt.Fprintf(a.out, "Logged in as %s\n", username)
}

func (a *App) logout(ctx context.Context) {
	a.session.Logout(ctx)
	a.userName = ""
	fmt.Fprintln(a.out, "Logged out")
}

func (a *App) download(ctx context.Context) {
	treatmentID, err := GetSimpleText(a.reader, "Treatment id", a.out)
	if err != nil || treatmentID == "" {
		return
	}
	if err := a.engine.Download(ctx, treatmentID); err != nil {
		fmt.Fprintf(a.out, "Download failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Treatment %s downloaded for offline work\n", treatmentID)
}

func (a *App) scan(ctx context.Context) {
	treatmentID, err := GetSimpleText(a.reader, "Treatment id", a.out)
	if err != nil || treatmentID == "" {
		return
	}
	serial, err := GetSimpleText(a.reader, "Serial number", a.out)
	if err != nil || serial == "" {
		return
	}
	qtyText, err := GetSimpleText(a.reader, "Seed quantity", a.out)
	if err != nil {
		return
	}
	qty, err := strconv.Atoi(qtyText)
	if err != nil || qty < 0 {
		fmt.Fprintln(a.out, "Seed quantity must be a non-negative number")
		return
	}
	label, _ := GetSimpleText(a.reader, "Package label (optional)", a.out)

	app, err := a.treatments.Scan(ctx, services.ScanRequest{
		TreatmentID:  treatmentID,
		SerialNumber: serial,
		SeedQuantity: qty,
		PackageLabel: label,
		ActorID:      a.userName,
	})
	if err != nil {
		fmt.Fprintf(a.out, "Scan failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Applicator registered: %s (serial %s)\n", app.ID, app.SerialNumber)
}

func (a *App) status(ctx context.Context) {
	applicatorID, err := GetSimpleText(a.reader, "Applicator id", a.out)
	if err != nil || applicatorID == "" {
		return
	}
	statusText, err := GetSimpleText(a.reader, "New status", a.out)
	if err != nil {
		return
	}
	target, err := workflow.ParseStatus(statusText)
	if err != nil {
		fmt.Fprintf(a.out, "Unknown status %q\n", statusText)
		return
	}

	var comment string
	if workflow.RequiresComment(target) {
		comment, err = GetSimpleText(a.reader, "Comment (required for this status)", a.out)
		if err != nil {
			return
		}
	}

	if err := a.treatments.ChangeStatus(ctx, applicatorID, target, comment, a.userName); err != nil {
		fmt.Fprintf(a.out, "Status change failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Applicator %s is now %s\n", applicatorID, target)
}

func (a *App) list(ctx context.Context) {
	snapshots, err := a.treatments.List(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "List failed: %v\n", err)
		return
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(a.out, "No treatments cached locally")
		return
	}
	for _, s := range snapshots {
		fmt.Fprintf(a.out, "Treatment %s  indication=%s  patient=%s  expires=%s\n",
			s.Treatment.ID, s.Treatment.Indication, s.Treatment.PatientRef,
			s.Treatment.ExpiresAt.Format("2006-01-02 15:04"))
		for _, app := range s.Applicators {
			fmt.Fprintf(a.out, "  %s  serial=%s  status=%s  seeds=%d  sync=%s\n",
				app.ID, app.SerialNumber, app.Status, app.SeedQuantity, app.SyncStatus)
		}
	}
}

func (a *App) audit(ctx context.Context) {
	applicatorID, err := GetSimpleText(a.reader, "Applicator id", a.out)
	if err != nil || applicatorID == "" {
		return
	}
	trail, err := a.treatments.Audit(ctx, applicatorID)
	if err != nil {
		fmt.Fprintf(a.out, "Audit lookup failed: %v\n", err)
		return
	}
	if len(trail) == 0 {
		fmt.Fprintln(a.out, "No transitions recorded")
		return
	}
	for _, e := range trail {
		line := fmt.Sprintf("%s  %s -> %s  by %s",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.PreviousStatus, e.NewStatus, e.ActorID)
		if e.Reason != "" {
			line += "  (" + e.Reason + ")"
		}
		fmt.Fprintln(a.out, line)
	}
}

func (a *App) sync(ctx context.Context) {
	report, err := a.engine.Push(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Sync failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Pushed %d, accepted %d, remapped %d, overwritten %d\n",
		report.Pushed, report.Accepted, report.Remapped, report.Overwritten)
	for _, b := range report.Blocked {
		fmt.Fprintf(a.out, "  blocked: applicator %s: %s\n", b.EntityID, b.Reason)
	}
	if report.AdminRequired() {
		fmt.Fprintln(a.out, "Some conflicts require admin adjudication; see 'conflicts'")
	}
}

func (a *App) conflicts(ctx context.Context) {
	conflicted, err := a.treatments.Conflicts(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Conflict lookup failed: %v\n", err)
		return
	}
	if len(conflicted) == 0 {
		fmt.Fprintln(a.out, "No conflicts waiting for adjudication")
		return
	}
	for _, app := range conflicted {
		fmt.Fprintf(a.out, "  %s  serial=%s  local status=%s  version=%d\n",
			app.ID, app.SerialNumber, app.Status, app.Version)
	}
}

func (a *App) wipe(ctx context.Context) {
	confirm, err := GetSimpleText(a.reader, "Wipe all local data? Type 'yes' to confirm", a.out)
	if err != nil || confirm != "yes" {
		fmt.Fprintln(a.out, "Wipe cancelled")
		return
	}
	if err := a.store.Wipe(ctx); err != nil {
		fmt.Fprintf(a.out, "Wipe failed: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, "Local data wiped")
}
