package extract

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rs/zerolog/log"

	"litminer/internal/decode"
	"litminer/internal/services/funnel"
)

// graphItem is one decoded element of an entity reply: an entity with any
// relations nested under it, or a bare relation.
type graphItem struct {
	entity    *Entity
	relations []Relation
}

// Entities extracts entities and the relations between them. Relations whose
// endpoints are not both named by an entity in the same reply are dropped.
func (p *Pipeline) Entities(ctx context.Context, set funnel.EvidenceSet, query string) (Graph, Outcome[Entity]) {
	return p.graph(ctx, CategoryEntities, set, query)
}

// KeyEntities is Entities with a prompt focused on the entities most relevant
// to the query.
func (p *Pipeline) KeyEntities(ctx context.Context, set funnel.EvidenceSet, query string) (Graph, Outcome[Entity]) {
	return p.graph(ctx, CategoryKeyEntities, set, query)
}

func (p *Pipeline) graph(ctx context.Context, category Category, set funnel.EvidenceSet, query string) (Graph, Outcome[Entity]) {
	out := run(ctx, p, category, set, query, graphElements, convertGraphItem)
	g := resolve(out.Records)
	if dangling := countRelations(out.Records) - len(g.Relations); dangling > 0 {
		log.Debug().Str("category", string(category)).Int("relations", dangling).Msg("Dropped unresolved or duplicate relations")
	}
	return g, Outcome[Entity]{
		Category: out.Category,
		State:    out.State,
		Records:  g.Entities,
		Dropped:  out.Dropped,
		Err:      out.Err,
	}
}

// graphElements accepts either a flat array of entities and relations or an
// object holding "entities" and "relations" arrays.
func graphElements(raw string) ([]json.RawMessage, error) {
	elements, err := decode.Elements(raw)
	if err != nil {
		return nil, err
	}
	var flat []json.RawMessage
	for _, element := range elements {
		var f fields
		if json.Unmarshal(element, &f) == nil && !f.has("name") && (f.has("entities") || f.has("relations")) {
			flat = append(flat, f.list("entities")...)
			flat = append(flat, f.list("relations")...)
			continue
		}
		flat = append(flat, element)
	}
	return flat, nil
}

func convertGraphItem(raw json.RawMessage) (graphItem, error) {
	var shape fields
	if err := json.Unmarshal(raw, &shape); err == nil && !shape.has("name") && shape.has("subject") {
		rel, err := convertRelation(raw)
		if err != nil {
			return graphItem{}, err
		}
		return graphItem{relations: []Relation{rel}}, nil
	}

	f, err := parseFields(raw, "name", "type")
	if err != nil {
		return graphItem{}, err
	}
	mentions := 1
	for _, key := range []string{"mentions", "mentionCount", "mention_count", "count"} {
		if n, ok := f.integer(key); ok && n > 0 {
			mentions = n
			break
		}
	}
	item := graphItem{entity: &Entity{Name: f.str("name"), Type: f.str("type"), MentionCount: mentions}}
	for _, nested := range f.list("relations") {
		rel, err := convertRelation(nested)
		if err != nil {
			log.Debug().Err(err).Str("entity", item.entity.Name).Msg("Dropping malformed relation")
			continue
		}
		item.relations = append(item.relations, rel)
	}
	return item, nil
}

func convertRelation(raw json.RawMessage) (Relation, error) {
	f, err := parseFields(raw, "subject", "predicate", "object")
	if err != nil {
		return Relation{}, err
	}
	confidence := DefaultConfidence
	if v, ok := f.float("confidence"); ok {
		confidence = math.Max(0, math.Min(1, v))
	}
	return Relation{
		Subject:    f.str("subject"),
		Predicate:  f.str("predicate"),
		Object:     f.str("object"),
		Confidence: confidence,
	}, nil
}

// resolve merges repeated entity names, keeping the first, and keeps each
// relation triple once when both endpoints exist.
func resolve(items []graphItem) Graph {
	g := Graph{Entities: []Entity{}, Relations: []Relation{}}
	names := make(map[string]struct{})
	for _, item := range items {
		if item.entity == nil {
			continue
		}
		if _, dup := names[item.entity.Name]; dup {
			continue
		}
		names[item.entity.Name] = struct{}{}
		g.Entities = append(g.Entities, *item.entity)
	}

	type triple struct{ s, p, o string }
	seen := make(map[triple]struct{})
	for _, item := range items {
		for _, rel := range item.relations {
			if _, ok := names[rel.Subject]; !ok {
				continue
			}
			if _, ok := names[rel.Object]; !ok {
				continue
			}
			key := triple{rel.Subject, rel.Predicate, rel.Object}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			g.Relations = append(g.Relations, rel)
		}
	}
	return g
}

func countRelations(items []graphItem) int {
	n := 0
	for _, item := range items {
		n += len(item.relations)
	}
	return n
}
