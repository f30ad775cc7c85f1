package server

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"proposal_wizard/generator"
	"proposal_wizard/publisher"
	"proposal_wizard/store"
)

const maxUploadBytes = 10 << 20

// imageSections lists the registry sections that accept uploaded images.
func (s *Server) imageSections() []string {
	var keys []string
	for _, def := range s.agent.Registry().Sections() {
		if def.Images {
			keys = append(keys, def.Key)
		}
	}
	return keys
}

func (s *Server) imagesBySection(ctx context.Context, id string) (map[string][]generator.Image, error) {
	out := make(map[string][]generator.Image)
	for _, key := range s.imageSections() {
		images, err := s.proposals.Images(ctx, id, key)
		if err != nil {
			return nil, err
		}
		if len(images) > 0 {
			out[key] = images
		}
	}
	return out, nil
}

func (s *Server) handleImageList(w http.ResponseWriter, r *http.Request) {
	images, err := s.imagesBySection(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeData(w, http.StatusOK, images)
}

func (s *Server) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}

	section := r.FormValue("section")
	def, err := s.agent.Registry().Lookup(section)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !def.Images {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("section %q does not accept images", section))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: image")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "only image uploads are accepted")
		return
	}

	mu := s.lockProposal(id)
	defer mu.Unlock()

	ctx := r.Context()
	if _, ok, err := s.proposals.Proposal(ctx, id); err != nil {
		s.writeFailure(w, err)
		return
	} else if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", errProposalNotFound, id))
		return
	}

	imageID := s.newID()
	if err := s.proposals.SaveImageData(ctx, imageID, store.ImageData{ContentType: contentType, Data: data}); err != nil {
		s.writeFailure(w, err)
		return
	}
	img := generator.Image{
		ID:          imageID,
		SectionKey:  section,
		Name:        path.Base(header.Filename),
		URL:         publisher.ImagePathPrefix + imageID,
		ContentType: contentType,
		Status:      generator.ImagePending,
		UploadedAt:  s.now(),
	}
	images, err := s.proposals.Images(ctx, id, section)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := s.proposals.SaveImages(ctx, id, section, append(images, img)); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.log.Info("image uploaded", "proposal", id, "section", section, "image", imageID, "bytes", len(data))
	writeData(w, http.StatusCreated, img)
}

// updateImage finds an image of the proposal by ID and applies fn to its section's list.
// fn returns the new list and the value to respond with.
// It reports whether the list was saved.
func (s *Server) updateImage(w http.ResponseWriter, r *http.Request, fn func(images []generator.Image, i int) ([]generator.Image, any)) bool {
	id, imageID := r.PathValue("id"), r.PathValue("imageID")
	mu := s.lockProposal(id)
	defer mu.Unlock()

	ctx := r.Context()
	for _, section := range s.imageSections() {
		images, err := s.proposals.Images(ctx, id, section)
		if err != nil {
			s.writeFailure(w, err)
			return false
		}
		for i := range images {
			if images[i].ID != imageID {
				continue
			}
			updated, out := fn(images, i)
			if err := s.proposals.SaveImages(ctx, id, section, updated); err != nil {
				s.writeFailure(w, err)
				return false
			}
			writeData(w, http.StatusOK, out)
			return true
		}
	}
	s.writeFailure(w, fmt.Errorf("%w: %s", errImageNotFound, imageID))
	return false
}

func (s *Server) handleImageApprove(w http.ResponseWriter, r *http.Request) {
	s.updateImage(w, r, func(images []generator.Image, i int) ([]generator.Image, any) {
		images[i].Status = generator.ImageApproved
		return images, images[i]
	})
}

func (s *Server) handleImageReject(w http.ResponseWriter, r *http.Request) {
	s.updateImage(w, r, func(images []generator.Image, i int) ([]generator.Image, any) {
		images[i].Status = generator.ImageRejected
		return images, images[i]
	})
}

func (s *Server) handleImageDelete(w http.ResponseWriter, r *http.Request) {
	var removed generator.Image
	saved := s.updateImage(w, r, func(images []generator.Image, i int) ([]generator.Image, any) {
		removed = images[i]
		return append(images[:i:i], images[i+1:]...), removed
	})
	if !saved {
		return
	}
	if err := s.proposals.DeleteImageData(r.Context(), removed.ID); err != nil {
		s.log.Warn("failed to delete image data", "image", removed.ID, "err", err)
	}
}

func (s *Server) handleImageGet(w http.ResponseWriter, r *http.Request) {
	imageID := r.PathValue("imageID")
	d, ok, err := s.proposals.ImageData(r.Context(), imageID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", errImageNotFound, imageID))
		return
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(d.Data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := publisher.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	ctx := r.Context()
	prop, ok, err := s.proposals.Proposal(ctx, id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", errProposalNotFound, id))
		return
	}
	images, err := s.imagesBySection(ctx, id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	art, err := s.exporter.Export(ctx, prop, images, f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if art == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	disposition := "attachment"
	if f == publisher.FormatHTML {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": art.Filename}))
	_, _ = w.Write(art.Data)
}
