// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reconcile is the decision engine: one tick loads both upstreams,
// normalizes Cloud's filament list, and walks each item through the
// reuse-or-create / usage-reconciliation / cleanup pipeline. It owns no
// transport or storage details of its own — those are the Inv Client,
// Cloud Client, and Local Cache it is constructed with; the struct owns
// its collaborators and exposes one Run-shaped entry point.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/spoolsync/spoolsync/internal/apperr"
	"github.com/spoolsync/spoolsync/internal/cloudclient"
	"github.com/spoolsync/spoolsync/internal/config"
	"github.com/spoolsync/spoolsync/internal/invclient"
	"github.com/spoolsync/spoolsync/internal/model"
	"github.com/spoolsync/spoolsync/internal/normalize"
	"github.com/spoolsync/spoolsync/internal/physics"
	"github.com/spoolsync/spoolsync/internal/status"
	"github.com/spoolsync/spoolsync/internal/storage"
)

// Reconciler owns the upstream collaborators and runs one tick at a time.
// The Scheduler guarantees single-flight; Reconciler itself assumes it is
// never entered concurrently.
type Reconciler struct {
	logger log.Logger
	inv    *invclient.Client
	cloud  *cloudclient.Client
	db     *storage.DB
	cfg    *config.Store
	status *status.Reporter
}

// New constructs a Reconciler.
func New(logger log.Logger, inv *invclient.Client, cloud *cloudclient.Client, db *storage.DB, cfg *config.Store, st *status.Reporter) *Reconciler {
	return &Reconciler{logger: logger, inv: inv, cloud: cloud, db: db, cfg: cfg, status: st}
}

// RunOnce executes one full reconciliation tick. Callers (the Scheduler)
// are responsible for ensuring this is never called concurrently with
// itself; RunOnce does not defend against that on its own.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	tickStart := time.Now().UTC()
	lastSync := r.cfg.GetLastSyncTime(ctx)
	dryRun := r.cfg.GetDryRun(ctx)
	epsilon := r.cfg.GetEpsilonGrams(ctx)

	r.status.Begin(tickStart, dryRun)

	cloudFilaments, cloudTypes, invSpools, invFilaments, invVendors, err := r.loadAll(ctx)
	if err != nil {
		level.Error(r.logger).Log("msg", "aborting tick: failed to load upstream state", "err", err)
		r.status.Finish(time.Now().UTC(), err.Error(), false)
		return err
	}

	codeIndex := make(map[string]invclient.Spool, len(invSpools))
	for _, sp := range invSpools {
		if sp.LotNr != "" {
			codeIndex[sp.LotNr] = sp
		}
	}

	vendorByName := make(map[string]invclient.Vendor, len(invVendors))
	vendorNameByID := make(map[int64]string, len(invVendors))
	for _, v := range invVendors {
		vendorByName[strings.ToLower(v.Name)] = v
		vendorNameByID[v.ID] = v.Name
	}

	seenCodes := make(map[string]bool, len(cloudFilaments))
	ok := true

	for _, cf := range cloudFilaments {
		if cf.UID == "" {
			level.Warn(r.logger).Log("msg", "skipping cloud filament with no uid")
			continue
		}
		seenCodes[cf.UID] = true

		typ := cloudTypes[cf.Type.ID()]
		nf := normalize.Filament(cf, typ)

		if err := ctx.Err(); err != nil {
			level.Warn(r.logger).Log("msg", "tick cancelled between items", "err", err)
			ok = false
			break
		}

		outcome, err := r.reconcileItem(ctx, itemInput{
			cloud:          cf,
			normalized:     nf,
			codeIndex:      codeIndex,
			vendorByName:   vendorByName,
			vendorNameByID: vendorNameByID,
			invFilaments:   invFilaments,
			lastSync:       lastSync,
			epsilonGrams:   epsilon,
			dryRun:         dryRun,
		})
		if err != nil {
			level.Error(r.logger).Log("msg", "item reconciliation failed", "code", cf.UID, "err", err)
			r.status.RecordItem(status.OutcomeError)
			continue
		}
		r.status.RecordItem(outcome)
	}

	if err := ctx.Err(); err != nil {
		level.Warn(r.logger).Log("msg", "tick cancelled before cleanup", "err", err)
		ok = false
	} else if err := r.cleanup(ctx, codeIndex, seenCodes, dryRun); err != nil {
		level.Error(r.logger).Log("msg", "cleanup pass failed", "err", err)
		ok = false
	}

	if ok {
		if err := r.cfg.SetLastSyncTime(ctx, tickStart); err != nil {
			level.Error(r.logger).Log("msg", "failed to persist last sync time", "err", err)
			ok = false
		}
	}

	msg := "ok"
	if !ok {
		msg = "completed with errors"
	}
	r.status.Finish(time.Now().UTC(), msg, ok)
	if !ok {
		return fmt.Errorf("tick completed with errors")
	}
	return nil
}

func (r *Reconciler) loadAll(ctx context.Context) ([]cloudclient.Filament, map[string]cloudclient.FilamentType, []invclient.Spool, []invclient.Filament, []invclient.Vendor, error) {
	cloudResp, err := r.cloud.ListFilaments(ctx)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	typesResp, err := r.cloud.GetFilamentTypes(ctx)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	invSpools, err := r.inv.ListSpools(ctx)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	invFilaments, err := r.inv.ListFilaments(ctx)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	invVendors, err := r.inv.ListVendors(ctx)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	cloudFilaments := make([]cloudclient.Filament, 0, len(cloudResp.Filament))
	for _, f := range cloudResp.Filament {
		cloudFilaments = append(cloudFilaments, f)
	}
	return cloudFilaments, typesResp.Types, invSpools, invFilaments, invVendors, nil
}

type itemInput struct {
	cloud          cloudclient.Filament
	normalized     model.NormalizedFilament
	codeIndex      map[string]invclient.Spool
	vendorByName   map[string]invclient.Vendor
	vendorNameByID map[int64]string
	invFilaments   []invclient.Filament
	lastSync       time.Time
	epsilonGrams   float64
	dryRun         bool
}

func (r *Reconciler) reconcileItem(ctx context.Context, in itemInput) (status.Outcome, error) {
	code := in.cloud.UID
	f := in.normalized.Filament

	// Step 1 — mirror filament locally.
	localFilamentID, err := r.mirrorFilament(ctx, f)
	if err != nil {
		return status.OutcomeError, err
	}

	gpm, ok := physics.GramsPerMeter(f.DensityGCM3, f.DiameterMM)
	if !ok {
		gpm = physics.FallbackGramsPerMeter
	}

	// Step 2 — ensure Inv spool exists.
	sp, existed := in.codeIndex[code]
	created := false
	if !existed {
		if in.dryRun {
			level.Info(r.logger).Log("msg", "dry-run: would create inv spool", "code", code)
			roundedWeight := physics.RoundToStandardWeight(physics.WeightFromLengthMM(in.normalized.TotalMM, gpm), f.Brand)
			sp = invclient.Spool{
				LotNr:        code,
				InitialWeigh: jsonNumberFromFloat(roundedWeight),
				UsedWeight:   jsonNumberFromFloat(0),
			}
			created = true
		} else {
			newSp, err := r.ensureSpool(ctx, in, gpm)
			if err != nil {
				return status.OutcomeError, err
			}
			sp = newSp
			in.codeIndex[code] = sp
			created = true
		}
	}

	// Step 3 — reconcile usage.
	outcome, finalUsedG, finalLastUsed, err := r.reconcileUsage(ctx, in, sp, gpm)
	if err != nil {
		return status.OutcomeError, err
	}

	// Step 4 — mirror spool locally.
	if err := r.mirrorSpool(ctx, localFilamentID, code, sp, finalUsedG, finalLastUsed); err != nil {
		return status.OutcomeError, err
	}

	if created {
		return status.OutcomeCreated, nil
	}
	return outcome, nil
}

func (r *Reconciler) mirrorFilament(ctx context.Context, f model.Filament) (int64, error) {
	sess, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	id, err := sess.UpsertFilament(ctx, f)
	if err != nil {
		sess.Rollback()
		return 0, err
	}
	if err := sess.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Reconciler) mirrorSpool(ctx context.Context, localFilamentID int64, code string, sp invclient.Spool, usedG float64, lastUsed time.Time) error {
	sess, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	s := model.Spool{
		FilamentID:     localFilamentID,
		LotNr:          code,
		SpoolWeightG:   invclient.ParseFloat(sp.SpoolWeight),
		InitialWeightG: invclient.ParseFloat(sp.InitialWeigh),
		UsedWeightG:    usedG,
		Price:          invclient.ParseFloat(sp.Price),
		Archived:       sp.Archived,
		Source:         "cloud",
		LastUsed:       lastUsed,
	}
	localSpoolID, err := sess.UpsertSpool(ctx, s)
	if err != nil {
		sess.Rollback()
		return err
	}
	if err := sess.RecordLink(ctx, "spool", localSpoolID, "cloud", code); err != nil {
		sess.Rollback()
		return err
	}
	return sess.Commit()
}

// ensureSpool implements step 2: reuse-or-create the Inv filament, then
// create the Inv spool.
func (r *Reconciler) ensureSpool(ctx context.Context, in itemInput, gpm float64) (invclient.Spool, error) {
	f := in.normalized.Filament

	filamentID, err := r.reuseOrCreateFilament(ctx, in, gpm)
	if err != nil {
		return invclient.Spool{}, err
	}

	roundedWeight := physics.RoundToStandardWeight(physics.WeightFromLengthMM(in.normalized.TotalMM, gpm), f.Brand)

	created, err := r.inv.CreateSpool(ctx, invclient.CreateSpoolPayload{
		FilamentID:    filamentID,
		LotNr:         in.cloud.UID,
		InitialWeight: roundedWeight,
		Price:         0,
		UsedWeight:    0,
		Archived:      false,
		SpoolWeight:   invclient.ParseFloat(in.cloud.SpoolWeight),
	})
	if err != nil {
		return invclient.Spool{}, err
	}
	return created, nil
}

// reuseOrCreateFilament finds an Inv filament matching the normalized
// filament's material, diameter, vendor, and color, creating a vendor and
// filament only if no match exists.
func (r *Reconciler) reuseOrCreateFilament(ctx context.Context, in itemInput, gpm float64) (int64, error) {
	f := in.normalized.Filament

	for _, candidate := range in.invFilaments {
		if !strings.EqualFold(candidate.Material, f.Material) {
			continue
		}
		if absFloat(invclient.ParseFloat(candidate.Diameter)-f.DiameterMM) > 0.01 {
			continue
		}
		vendorName := ""
		if vid, ok := candidate.Vendor.ID(); ok {
			vendorName = in.vendorNameByID[vid]
		}
		if !strings.EqualFold(vendorName, f.Brand) {
			continue
		}
		if !colorsEqual(candidate.ColorHex, f.ColorHex) {
			continue
		}
		return candidate.ID, nil
	}

	vendorID, err := r.ensureVendor(ctx, in, f.Brand)
	if err != nil {
		return 0, err
	}

	weight := physics.RoundToStandardWeight(physics.WeightFromLengthMM(in.normalized.TotalMM, gpm), f.Brand)

	created, err := r.inv.CreateFilament(ctx, invclient.CreateFilamentPayload{
		Name:           f.Name,
		Diameter:       f.DiameterMM,
		Density:        f.DensityGCM3,
		Material:       f.Material,
		VendorID:       vendorID,
		ColorHex:       f.ColorHex,
		SettingsNozzle: f.NozzleTempC,
		SettingsBed:    f.BedTempC,
		Price:          f.Price,
		Weight:         weight,
	})
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (r *Reconciler) ensureVendor(ctx context.Context, in itemInput, brand string) (int64, error) {
	if v, ok := in.vendorByName[strings.ToLower(brand)]; ok {
		return v.ID, nil
	}
	created, err := r.inv.CreateVendor(ctx, invclient.CreateVendorPayload{Name: brand})
	if err != nil {
		return 0, err
	}
	in.vendorByName[strings.ToLower(brand)] = created
	in.vendorNameByID[created.ID] = created.Name
	return created.ID, nil
}

func colorsEqual(a, b string) bool {
	if a == "" && b == "" {
		return true
	}
	return strings.EqualFold(a, b)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func jsonNumberFromFloat(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// reconcileUsage decides which side is authoritative for this item's
// usage and pushes the losing side forward. Returns the outcome, the
// final used-weight in grams, and the final last-used timestamp to mirror
// locally.
func (r *Reconciler) reconcileUsage(ctx context.Context, in itemInput, sp invclient.Spool, gpm float64) (status.Outcome, float64, time.Time, error) {
	f := in.normalized.Filament
	total := in.normalized.TotalMM
	left := in.normalized.LeftMM
	lengthUsedMM := total - left
	if lengthUsedMM < 0 {
		lengthUsedMM = 0
	}
	usedG := physics.WeightFromLengthMM(lengthUsedMM, gpm)
	curUsed := invclient.ParseFloat(sp.UsedWeight)

	invTimestamp, invHasTimestamp := invSpoolTimestamp(sp)
	delta := absFloat(usedG - curUsed)

	switch {
	case invHasTimestamp && invTimestamp.After(in.lastSync) && delta > in.epsilonGrams:
		// Inv is authoritative: back-compute remaining length for Cloud.
		if in.dryRun {
			level.Info(r.logger).Log("msg", "dry-run: would push inv usage to cloud", "code", in.cloud.UID, "used_g", curUsed)
			return status.OutcomeUpdated, curUsed, timestampOrZero(sp), nil
		}
		if err := r.pushInvUsageToCloud(ctx, in, sp, curUsed, gpm); err != nil {
			return status.OutcomeError, curUsed, time.Time{}, err
		}
		return status.OutcomeUpdated, curUsed, timestampOrZero(sp), nil

	case delta <= in.epsilonGrams:
		return status.OutcomeNoop, curUsed, timestampOrZero(sp), nil

	default:
		// Cloud is authoritative.
		lastUsed := in.normalized.UpdatedAt
		if lastUsed.IsZero() {
			lastUsed = time.Now().UTC()
		}
		if in.dryRun {
			level.Info(r.logger).Log("msg", "dry-run: would update inv spool usage", "code", in.cloud.UID, "used_g", usedG)
			return status.OutcomeUpdated, usedG, lastUsed, nil
		}
		if err := r.pushCloudUsageToInv(ctx, sp, usedG, lastUsed); err != nil {
			return status.OutcomeError, usedG, time.Time{}, err
		}
		return status.OutcomeUpdated, usedG, lastUsed, nil
	}
}

func timestampOrZero(sp invclient.Spool) time.Time {
	t, _ := invSpoolTimestamp(sp)
	return t
}

func invSpoolTimestamp(sp invclient.Spool) (time.Time, bool) {
	if t, ok := normalize.Timestamp(sp.LastUsed); ok {
		return t, true
	}
	if t, ok := normalize.Timestamp(sp.UpdatedAt); ok {
		return t, true
	}
	return time.Time{}, false
}

func (r *Reconciler) pushCloudUsageToInv(ctx context.Context, sp invclient.Spool, usedG float64, lastUsed time.Time) error {
	filamentID, _ := sp.ResolvedFilamentID()
	_, err := r.inv.UpdateSpool(ctx, sp.ID, invclient.UpdateSpoolPayload{
		FilamentID:  filamentID,
		Price:       invclient.ParseFloat(sp.Price),
		SpoolWeight: invclient.ParseFloat(sp.SpoolWeight),
		Archived:    sp.Archived,
		LotNr:       sp.LotNr,
		UsedWeight:  usedG,
		LastUsed:    lastUsed.Format(time.RFC3339),
	})
	return err
}

// pushInvUsageToCloud back-computes remaining length from Inv's used_weight
// and sends it to Cloud, building the update payload's length_used as
// percent remaining, preserving the upstream's documented field inversion.
func (r *Reconciler) pushInvUsageToCloud(ctx context.Context, in itemInput, sp invclient.Spool, curUsed, gpm float64) error {
	typeID := in.cloud.Type.ID()
	if typeID == "" {
		return &apperr.ValidationError{Field: "filament_type", Value: typeID, Message: "cloud filament has no type id; refusing to guess one"}
	}
	filamentTypeNumber, err := strconv.Atoi(typeID)
	if err != nil {
		return &apperr.ValidationError{Field: "filament_type", Value: typeID, Message: "type id is not numeric"}
	}

	initial := invclient.ParseFloat(sp.InitialWeigh)
	remainingG := initial - curUsed
	remainingMM := 0.0
	if gpm > 0 {
		remainingMM = remainingG / gpm * 1000
	}

	f := in.normalized.Filament
	totalMM := in.normalized.TotalMM
	percentRemaining := 0.0
	if totalMM > 0 {
		percentRemaining = remainingMM / totalMM * 100
	}

	payload := cloudclient.UpdatePayload{
		Left:               remainingMM,
		TotalLength:        totalMM,
		TotalLengthType:    "m",
		LengthUsed:         percentRemaining,
		LeftLengthType:     "percent",
		ColorName:          in.cloud.ColorName,
		ColorHex:           f.ColorHex,
		Width:              f.DiameterMM,
		Density:            f.DensityGCM3,
		Brand:              f.Brand,
		FilamentTypeNumber: filamentTypeNumber,
	}
	if err := r.cloud.UpdateFilament(ctx, in.cloud.UID, payload); err != nil {
		return err
	}

	// Re-read and verify the push landed: Cloud's create/update calls don't
	// echo the stored value back, so confirm convergence with a follow-up read.
	resp, err := r.cloud.ListFilaments(ctx)
	if err != nil {
		return err
	}
	if updated, ok := resp.Filament[in.cloud.UID]; ok {
		got := cloudclient.ParseFloat(updated.LeftMM)
		if absFloat(got-remainingMM) > 1.0 {
			level.Warn(r.logger).Log("msg", "cloud left did not converge to pushed value", "code", in.cloud.UID, "want", remainingMM, "got", got)
		}
	}
	return nil
}

// cleanup implements the cleanup pass: for every code present in Inv but
// absent from Cloud's current set, archive (if used) or delete (if unused)
// the Inv spool.
func (r *Reconciler) cleanup(ctx context.Context, codeIndex map[string]invclient.Spool, seenCodes map[string]bool, dryRun bool) error {
	var firstErr error
	for code, sp := range codeIndex {
		if err := ctx.Err(); err != nil {
			level.Warn(r.logger).Log("msg", "cleanup cancelled mid-pass", "err", err)
			return err
		}
		if seenCodes[code] {
			continue
		}
		if sp.Archived {
			r.status.RecordCleanup(status.CleanupSkipped)
			continue
		}
		used := invclient.ParseFloat(sp.UsedWeight)
		if dryRun {
			if used > 0 {
				level.Info(r.logger).Log("msg", "dry-run: would archive inv spool", "code", code)
			} else {
				level.Info(r.logger).Log("msg", "dry-run: would delete inv spool", "code", code)
			}
			continue
		}
		if used > 0 {
			filamentID, _ := sp.ResolvedFilamentID()
			_, err := r.inv.UpdateSpool(ctx, sp.ID, invclient.UpdateSpoolPayload{
				FilamentID:  filamentID,
				Price:       invclient.ParseFloat(sp.Price),
				SpoolWeight: invclient.ParseFloat(sp.SpoolWeight),
				Archived:    true,
				LotNr:       sp.LotNr,
				UsedWeight:  used,
				LastUsed:    sp.LastUsed,
			})
			if err != nil {
				level.Error(r.logger).Log("msg", "failed to archive inv spool", "code", code, "err", err)
				firstErr = err
				continue
			}
			r.status.RecordCleanup(status.CleanupArchived)
			continue
		}
		if err := r.inv.DeleteSpool(ctx, sp.ID); err != nil {
			level.Error(r.logger).Log("msg", "failed to delete inv spool", "code", code, "err", err)
			firstErr = err
			continue
		}
		r.status.RecordCleanup(status.CleanupDeleted)
	}
	return firstErr
}
