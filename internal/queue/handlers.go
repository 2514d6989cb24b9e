package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/cartonhq/carton/internal/util"
	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/logger"
	"github.com/cartonhq/carton/pkg/orchestrator"
)

func publishEvent(ch *amqp091.Channel, namespace, event, detail string) {
	body, err := json.Marshal(EventMsg{Namespace: namespace, Event: event, Detail: detail})
	if err != nil {
		return
	}
	err = util.RetryErr(2, func() error {
		return PublishTopic(ch, fmt.Sprintf("namespace.%s.%s", namespace, event), body)
	})
	if err != nil {
		logger.Warn("[Queue] Failed to publish event", "namespace", namespace, "event", event, "err", err)
	}
}

func ProcessSyncMessage(
	ctx context.Context,
	orch *orchestrator.Orchestrator,
	ch *amqp091.Channel,
	msg string,
) error {
	data := new(SyncJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Namespace == "" {
		return common.NewValidationError("sync job has no namespace", nil)
	}

	sum, err := orch.SyncNamespace(ctx, data.Namespace)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Namespace sync finished",
		"namespace", data.Namespace,
		"added", sum.Added,
		"retracted", sum.Retracted,
		"missing", sum.MissingRecorded,
	)
	publishEvent(ch, data.Namespace, "synced",
		fmt.Sprintf("added=%d retracted=%d", sum.Added, sum.Retracted))
	return nil
}

func ProcessAblateMessage(
	ctx context.Context,
	orch *orchestrator.Orchestrator,
	ch *amqp091.Channel,
	msg string,
) error {
	data := new(AblateJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Namespace == "" || len(data.RootIDs) == 0 {
		return common.NewValidationError("ablate job needs a namespace and root ids", nil)
	}

	result, err := orch.ExecuteAblation(ctx, data.Namespace, data.RootIDs, data.Cascade)
	if err != nil {
		// A half-committed ablation must surface on the DLQ rather than be
		// retried: re-running the text-store phase is safe, but the operator
		// should decide after seeing the consistency fault.
		if result != nil && result.TextStoreCommitted && !result.ProjectionCommitted {
			logger.Error("[Queue] Ablation left projection stale; rebuild required",
				"namespace", data.Namespace, "roots", data.RootIDs, "err", err)
			publishEvent(ch, data.Namespace, "ablation_failed", err.Error())
		}
		return err
	}

	logger.Info("[Queue] Ablation finished",
		"namespace", data.Namespace,
		"status", result.Status,
		"entities_removed", result.EntitiesRemoved,
		"relationships_dropped", result.RelationshipsDropped,
	)
	publishEvent(ch, data.Namespace, "ablated",
		fmt.Sprintf("removed=%d", result.EntitiesRemoved))
	return nil
}

func ProcessRebuildMessage(
	ctx context.Context,
	orch *orchestrator.Orchestrator,
	ch *amqp091.Channel,
	msg string,
) error {
	data := new(RebuildJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Namespace == "" {
		return common.NewValidationError("rebuild job has no namespace", nil)
	}

	report, err := orch.RebuildProjection(ctx, data.Namespace)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Projection rebuilt",
		"namespace", data.Namespace,
		"snapshot_id", report.SnapshotID,
		"nodes", report.Nodes,
		"edges", report.Edges,
	)
	publishEvent(ch, data.Namespace, "rebuilt", report.SnapshotID)
	return nil
}

func ProcessDedupeMessage(
	ctx context.Context,
	orch *orchestrator.Orchestrator,
	ch *amqp091.Channel,
	msg string,
) error {
	data := new(DedupeJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Namespace == "" {
		return common.NewValidationError("dedupe job has no namespace", nil)
	}

	candidates, err := orch.FindDuplicates(ctx, data.Namespace)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Duplicate pass finished",
		"namespace", data.Namespace,
		"candidates", len(candidates),
	)
	publishEvent(ch, data.Namespace, "deduped",
		fmt.Sprintf("candidates=%d", len(candidates)))
	return nil
}

func ProcessTriageMessage(
	ctx context.Context,
	orch *orchestrator.Orchestrator,
	ch *amqp091.Channel,
	msg string,
) error {
	data := new(TriageJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.Namespace == "" {
		return common.NewValidationError("triage job has no namespace", nil)
	}

	report, err := orch.PromoteMissing(ctx, data.Namespace)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Triage pass finished",
		"namespace", data.Namespace,
		"blacklisted", report.Blacklisted,
		"promoted", report.Promoted,
		"skipped", report.Skipped,
	)
	publishEvent(ch, data.Namespace, "triaged",
		fmt.Sprintf("promoted=%d blacklisted=%d", report.Promoted, report.Blacklisted))
	return nil
}
