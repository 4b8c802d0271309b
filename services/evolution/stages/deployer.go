// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// FilesystemDeployer applies proposals to an adapter workspace in three
// stages: backup, apply, verify. Originals are copied aside before any
// write, so rollback restores the pre-deployment state.
type FilesystemDeployer struct {
	// Root is the workspace directory file-change paths resolve
	// against.
	Root string

	// BackupDir receives pre-deployment copies, one subdirectory per
	// proposal. Default: <Root>/.evolve-backups
	BackupDir string

	// DryRun skips all writes; stages report success without touching
	// the filesystem and rollback availability is withheld.
	DryRun bool
}

// NewFilesystemDeployer creates a deployer rooted at dir.
func NewFilesystemDeployer(dir string) *FilesystemDeployer {
	return &FilesystemDeployer{Root: dir}
}

func (d *FilesystemDeployer) backupPath(proposalID string) string {
	base := d.BackupDir
	if base == "" {
		base = filepath.Join(d.Root, ".evolve-backups")
	}
	return filepath.Join(base, proposalID)
}

// Deploy runs the backup/apply/verify sequence. A failed stage marks
// the overall deployment failed; earlier successful stages stay in the
// result.
func (d *FilesystemDeployer) Deploy(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.DeploymentResult, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.DeploymentResult{}, err
	}

	result := datatypes.DeploymentResult{
		ProposalID: proposal.ID,
		Status:     datatypes.DeploymentStatusSuccess,
		DeployedAt: time.Now(),
	}

	if d.DryRun {
		for _, name := range []string{"backup", "apply", "verify"} {
			result.Stages = append(result.Stages, datatypes.StageOutcome{
				Name: name, State: datatypes.StageStateSkipped,
			})
		}
		return result, nil
	}

	runStage := func(name string, fn func() error) bool {
		start := time.Now()
		err := fn()
		outcome := datatypes.StageOutcome{
			Name:     name,
			State:    datatypes.StageStateSuccess,
			Duration: time.Since(start),
		}
		if err != nil {
			outcome.State = datatypes.StageStateFailed
			outcome.Error = err.Error()
			result.Status = datatypes.DeploymentStatusFailed
		}
		result.Stages = append(result.Stages, outcome)
		return err == nil
	}

	backupOK := runStage("backup", func() error { return d.backup(proposal) })
	result.RollbackAvailable = backupOK
	if !backupOK {
		return result, nil
	}
	if !runStage("apply", func() error { return d.apply(proposal) }) {
		return result, nil
	}
	runStage("verify", func() error { return d.verify(proposal) })
	return result, nil
}

// Rollback restores the pre-deployment copies taken by Deploy.
func (d *FilesystemDeployer) Rollback(ctx context.Context, proposal datatypes.ChangeProposal, deployment datatypes.DeploymentResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.DryRun {
		return nil
	}
	if !deployment.RollbackAvailable {
		return fmt.Errorf("deployment of proposal %s has no backup to restore", proposal.ID)
	}

	backupRoot := d.backupPath(proposal.ID)
	for _, fc := range proposal.FileChanges {
		target := filepath.Join(d.Root, fc.Path)
		saved := filepath.Join(backupRoot, fc.Path)

		data, err := os.ReadFile(saved)
		if os.IsNotExist(err) {
			// The file did not exist before deployment; undo a create.
			if rmErr := os.Remove(target); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("remove created file %s: %w", fc.Path, rmErr)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("read backup of %s: %w", fc.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("restore %s: %w", fc.Path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("restore %s: %w", fc.Path, err)
		}
	}
	return nil
}

// backup copies every file the proposal will touch, when it exists.
func (d *FilesystemDeployer) backup(proposal datatypes.ChangeProposal) error {
	backupRoot := d.backupPath(proposal.ID)
	for _, fc := range proposal.FileChanges {
		source := filepath.Join(d.Root, fc.Path)
		data, err := os.ReadFile(source)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("back up %s: %w", fc.Path, err)
		}
		dest := filepath.Join(backupRoot, fc.Path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("back up %s: %w", fc.Path, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("back up %s: %w", fc.Path, err)
		}
	}
	return nil
}

// apply writes, modifies, or deletes each file in the proposal.
func (d *FilesystemDeployer) apply(proposal datatypes.ChangeProposal) error {
	for _, fc := range proposal.FileChanges {
		target := filepath.Join(d.Root, fc.Path)
		switch fc.Op {
		case datatypes.FileChangeDelete:
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("delete %s: %w", fc.Path, err)
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("apply %s: %w", fc.Path, err)
			}
			if err := os.WriteFile(target, []byte(fc.Content), 0o644); err != nil {
				return fmt.Errorf("apply %s: %w", fc.Path, err)
			}
		}
	}
	return nil
}

// verify checks that applied files exist and deleted files do not.
func (d *FilesystemDeployer) verify(proposal datatypes.ChangeProposal) error {
	for _, fc := range proposal.FileChanges {
		target := filepath.Join(d.Root, fc.Path)
		_, err := os.Stat(target)
		switch fc.Op {
		case datatypes.FileChangeDelete:
			if err == nil {
				return fmt.Errorf("verify: %s still exists after delete", fc.Path)
			}
		default:
			if err != nil {
				return fmt.Errorf("verify: %s missing after apply: %w", fc.Path, err)
			}
		}
	}
	return nil
}
