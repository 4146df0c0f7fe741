// fieldsync drives one edit-and-save session against a Sitecheck server
// from the command line: load a response (or start a new one), apply edits
// from a JSON file, and run the reconciliation save.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"sitecheck/api/internal/apiclient"
	"sitecheck/api/internal/config"
	"sitecheck/api/internal/engine"
	"sitecheck/api/internal/imagestore"
)

type editsFile struct {
	Title          string `json:"title"`
	CompanyID      string `json:"companyId"`
	Notes          string `json:"notes"`
	InspectionType string `json:"inspectionType"`
	Answers        []struct {
		ItemID      string `json:"itemId"`
		Answer      string `json:"answer"`
		Explanation string `json:"explanation"`
		Image       string `json:"image"` // local file path
		RemoveImage bool   `json:"removeImage"`
	} `json:"answers"`
	Team []struct {
		Role         string `json:"role"`
		Organization string `json:"organization"`
		FullName     string `json:"fullName"`
		ID           string `json:"id"`
	} `json:"team"`
}

func main() {
	var (
		serverURL  = flag.String("server", "http://localhost:8686", "Sitecheck API base URL")
		token      = flag.String("token", "", "access token (or SITECHECK_TOKEN)")
		templateID = flag.String("template", "", "template id")
		responseID = flag.String("response", "", "existing response id; empty starts a new response")
		editsPath  = flag.String("edits", "", "path to JSON edits file")
	)
	flag.Parse()

	if *token == "" {
		*token = os.Getenv("SITECHECK_TOKEN")
	}
	if *token == "" || *templateID == "" || *editsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*editsPath)
	if err != nil {
		log.Fatalf("read edits file: %v", err)
	}
	var edits editsFile
	if err := json.Unmarshal(raw, &edits); err != nil {
		log.Fatalf("parse edits file: %v", err)
	}

	ctx := context.Background()
	client := apiclient.New(*serverURL, *token)
	loader := engine.NewLoader(client)

	var state *engine.EditState
	if *responseID == "" {
		inspectionType := engine.InspectionType(edits.InspectionType)
		if inspectionType == "" {
			inspectionType = engine.InspectionClosed
		}
		state, err = loader.LoadNew(ctx, *templateID, engine.ResponseHeader{
			TemplateID: *templateID,
			Title:      edits.Title,
			CompanyID:  edits.CompanyID,
			Notes:      edits.Notes,
			Type:       inspectionType,
		})
	} else {
		state, err = loader.Load(ctx, *templateID, *responseID)
	}
	if err != nil {
		log.Fatalf("load session: %v", err)
	}

	var imageService engine.ImageService
	cfg := config.Load()
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobClient, err := imagestore.New(ctx, imagestore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("blob store: %v", err)
		}
		imageService = blobClient
	}
	images := engine.NewImageManager(imageService, state)

	if *responseID != "" {
		header := state.Header()
		if edits.Title != "" {
			header.Title = edits.Title
		}
		if edits.CompanyID != "" {
			header.CompanyID = edits.CompanyID
		}
		if edits.Notes != "" {
			header.Notes = edits.Notes
		}
		state.SetHeader(header)
	}

	for _, answer := range edits.Answers {
		id := engine.ItemID(answer.ItemID)
		if !state.SetAnswer(id, answer.Answer) {
			log.Fatalf("unknown item %q", answer.ItemID)
		}
		if answer.Explanation != "" {
			state.SetExplanation(id, answer.Explanation)
		}
		if answer.RemoveImage {
			images.Remove(ctx, id)
		} else if answer.Image != "" {
			if imageService == nil {
				log.Fatalf("item %q has an image but no blob store is configured", answer.ItemID)
			}
			if !images.Attach(id, answer.Image) {
				log.Fatalf("could not attach image to item %q", answer.ItemID)
			}
		}
	}

	if len(edits.Team) > 0 {
		members := make([]engine.TeamMember, 0, len(edits.Team))
		for _, member := range edits.Team {
			members = append(members, engine.TeamMember{
				ID:           member.ID,
				Role:         member.Role,
				Organization: member.Organization,
				FullName:     member.FullName,
			})
		}
		state.SetTeam(members)
	}

	executor := engine.NewExecutor(client, images, state)
	guard := engine.NewExitGuard(func(ctx context.Context) (engine.Counts, error) {
		return executor.Execute(ctx, state.Plan())
	})

	counts, err := guard.ManualSave(ctx)
	if err != nil {
		log.Fatalf("save failed (applied prefix kept, rerun to retry the rest): %v", err)
	}

	savedID := state.Header().ID
	if err := client.Finalize(ctx, savedID, counts.Created, counts.Updated, counts.Deleted); err != nil {
		log.Printf("finalize failed: %v", err)
	}

	fmt.Printf("saved %s: %d created, %d updated, %d deleted, %d unchanged\n",
		savedID, counts.Created, counts.Updated, counts.Deleted, counts.Unchanged)
}
