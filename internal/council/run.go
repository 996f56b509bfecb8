package council

import (
	"context"

	"github.com/BaSui01/llmcouncil/types"
)

// EventType names a progress event of a deliberation.
type EventType string

const (
	EventStage1Start    EventType = "stage1_start"
	EventStage1Complete EventType = "stage1_complete"
	EventStage2Start    EventType = "stage2_start"
	EventStage2Complete EventType = "stage2_complete"
	EventStage3Start    EventType = "stage3_start"
	EventStage3Complete EventType = "stage3_complete"
	EventTitleComplete  EventType = "title_complete"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Event is one progress notification. Data holds the stage output for the
// *_complete events; Metadata is only set on stage2_complete.
type Event struct {
	Type     EventType       `json:"type"`
	Data     any             `json:"data,omitempty"`
	Metadata *types.Metadata `json:"metadata,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// EmitFunc receives progress events. It is called from the Run goroutine only.
type EmitFunc func(Event)

// Run executes stages one to three in order, reporting progress through emit
// (which may be nil). When no member answers in stage one, stages two and
// three are skipped and Stage3 carries AllModelsFailedMessage.
func (c *Council) Run(ctx context.Context, query string, emit EmitFunc) types.CouncilResult {
	if emit == nil {
		emit = func(Event) {}
	}
	ctx, span := c.tracer.Start(ctx, "council.run")
	defer span.End()

	emit(Event{Type: EventStage1Start})
	stage1 := c.CollectResponses(ctx, query)
	emit(Event{Type: EventStage1Complete, Data: stage1})

	if len(stage1) == 0 {
		result := types.CouncilResult{
			Stage1: stage1,
			Stage2: []types.StageTwoResult{},
			Stage3: types.StageThreeResult{Model: ErrorModel, Response: AllModelsFailedMessage},
			Metadata: types.Metadata{
				LabelToModel:      map[string]string{},
				AggregateRankings: []types.AggregateRanking{},
			},
		}
		c.logger.Warn("all council members failed, skipping ranking and synthesis")
		emit(Event{Type: EventStage3Complete, Data: result.Stage3})
		return result
	}

	emit(Event{Type: EventStage2Start})
	stage2, labelToModel := c.CollectRankings(ctx, query, stage1)
	metadata := types.Metadata{
		LabelToModel:      labelToModel,
		AggregateRankings: AggregateRankings(stage2, labelToModel),
	}
	emit(Event{Type: EventStage2Complete, Data: stage2, Metadata: &metadata})

	emit(Event{Type: EventStage3Start})
	stage3 := c.SynthesizeFinal(ctx, query, stage1, stage2)
	emit(Event{Type: EventStage3Complete, Data: stage3})

	return types.CouncilResult{
		Stage1:   stage1,
		Stage2:   stage2,
		Stage3:   stage3,
		Metadata: metadata,
	}
}
