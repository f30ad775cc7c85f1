package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"proposal_wizard/generator"
)

func ProposalKey(id string) string         { return "proposal:" + id }
func SelectedSectionsKey(id string) string { return "selected-sections:" + id }
func ImagesKey(id, section string) string  { return "images:" + id + ":" + section }
func ImageDataKey(imageID string) string   { return "image-data:" + imageID }

// ImageData is the uploaded file behind an Image.
type ImageData struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Proposals stores wizard state as JSON documents in a Store. Entries that fail to decode
// are logged and treated as absent.
type Proposals struct {
	kv  Store
	log *slog.Logger
}

func NewProposals(kv Store) *Proposals {
	return &Proposals{kv: kv, log: slog.Default().With("component", "store.proposals")}
}

func (p *Proposals) KV() Store { return p.kv }

func (p *Proposals) load(ctx context.Context, key string, v any) (bool, error) {
	e, err := p.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		p.log.Warn("ignoring corrupt entry", "key", key, "err", err)
		return false, nil
	}
	return true, nil
}

func (p *Proposals) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = p.kv.Set(ctx, key, data)
	return err
}

// Proposal loads a proposal. ok is false when it does not exist.
func (p *Proposals) Proposal(ctx context.Context, id string) (generator.Proposal, bool, error) {
	var prop generator.Proposal
	ok, err := p.load(ctx, ProposalKey(id), &prop)
	if ok && prop.Sections == nil {
		prop.Sections = make(map[string]generator.Section)
	}
	return prop, ok, err
}

func (p *Proposals) SaveProposal(ctx context.Context, prop generator.Proposal) error {
	if prop.ID == "" {
		return errors.New("proposal has no id")
	}
	return p.save(ctx, ProposalKey(prop.ID), prop)
}

// SelectedSections returns the section keys the user picked for a proposal, nil if none
// were saved.
func (p *Proposals) SelectedSections(ctx context.Context, id string) ([]string, error) {
	var keys []string
	_, err := p.load(ctx, SelectedSectionsKey(id), &keys)
	return keys, err
}

func (p *Proposals) SaveSelectedSections(ctx context.Context, id string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return p.save(ctx, SelectedSectionsKey(id), keys)
}

func (p *Proposals) Images(ctx context.Context, id, section string) ([]generator.Image, error) {
	var images []generator.Image
	_, err := p.load(ctx, ImagesKey(id, section), &images)
	return images, err
}

func (p *Proposals) SaveImages(ctx context.Context, id, section string, images []generator.Image) error {
	if images == nil {
		images = []generator.Image{}
	}
	return p.save(ctx, ImagesKey(id, section), images)
}

// AllImages collects the images of every listed section, in section order.
func (p *Proposals) AllImages(ctx context.Context, id string, sections []string) ([]generator.Image, error) {
	var all []generator.Image
	for _, s := range sections {
		images, err := p.Images(ctx, id, s)
		if err != nil {
			return nil, err
		}
		all = append(all, images...)
	}
	return all, nil
}

func (p *Proposals) ImageData(ctx context.Context, imageID string) (ImageData, bool, error) {
	var d ImageData
	ok, err := p.load(ctx, ImageDataKey(imageID), &d)
	return d, ok, err
}

func (p *Proposals) SaveImageData(ctx context.Context, imageID string, d ImageData) error {
	return p.save(ctx, ImageDataKey(imageID), d)
}

func (p *Proposals) DeleteImageData(ctx context.Context, imageID string) error {
	return p.kv.Delete(ctx, ImageDataKey(imageID))
}

// Watch streams every saved version of a proposal until ctx is done.
func (p *Proposals) Watch(ctx context.Context, id string) (<-chan generator.Proposal, error) {
	changes, err := p.kv.Subscribe(ctx, ProposalKey(id))
	if err != nil {
		return nil, err
	}
	key := ProposalKey(id)
	out := make(chan generator.Proposal)
	go func() {
		defer close(out)
		for e := range changes {
			if e.Key != key || e.Deleted {
				continue
			}
			var prop generator.Proposal
			if err := json.Unmarshal(e.Value, &prop); err != nil {
				p.log.Warn("ignoring corrupt proposal update", "key", e.Key, "err", err)
				continue
			}
			select {
			case out <- prop:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
