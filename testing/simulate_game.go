// Command simulate_game lets a Gemini model play the castle adventure end to
// end against a throwaway save directory and prints what happened. It is a
// playtesting aid for story authors.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"unicode"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tatianab/castle-adventure/internal/app"
	"github.com/tatianab/castle-adventure/internal/config"
	"github.com/tatianab/castle-adventure/internal/game"
	"github.com/tatianab/castle-adventure/internal/logging"
	"github.com/tatianab/castle-adventure/internal/models"
)

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireGemini(); err != nil {
		log.Fatal(err)
	}

	dir, err := os.MkdirTemp("", "castle-sim-*")
	if err != nil {
		log.Fatalf("Failed to create save dir: %v", err)
	}
	defer os.RemoveAll(dir)
	cfg.Store = config.StoreConfig{Backend: config.BackendFile, SaveDir: dir}

	logger, err := logging.New(cfg.Log.Logging())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start game: %v", err)
	}
	defer a.Close()

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Gemini.APIKey))
	if err != nil {
		log.Fatalf("Failed to create player client: %v", err)
	}
	defer client.Close()
	player := client.GenerativeModel(cfg.Gemini.Model)

	owner := models.SessionIdentity("simulation")
	st, err := a.Service.StartOrResume(ctx, owner)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	fmt.Printf("--- %s ---\n\n", a.Graph.Title())

	var history []string
	for turn := 1; turn <= cfg.Gemini.Turns; turn++ {
		view, err := a.Service.ViewScene(ctx, owner, st.CurrentScene)
		if err != nil {
			log.Fatalf("Failed to view scene: %v", err)
		}
		fmt.Printf("--- Turn %d: %s ---\n", turn, view.Scene.Title)

		action := getPlayerAction(ctx, player, view, history)
		fmt.Printf("Player Action: %s\n", action)

		outcome, res := act(ctx, a.Service, owner, view, action)
		fmt.Printf("Outcome: %s\n", outcome)
		history = append(history, fmt.Sprintf("In %s you chose %q: %s", view.Scene.Title, action, outcome))

		if res != nil && res.Ending != nil {
			fmt.Printf("\nGame Ended: %s %s (%s)\n", res.Ending.Icon, res.Ending.Title, res.Ending.Category)
			fmt.Printf("Choices: %d, Deaths: %d, Items: %v\n", res.State.ChoicesMade, res.State.Deaths, res.State.Inventory)
			return
		}
		if st, err = a.Service.CurrentState(ctx, owner); err != nil {
			log.Fatalf("Failed to load state: %v", err)
		}
		fmt.Printf("Stats: Deaths=%d, Inventory=%v\n\n", st.Deaths, st.Inventory)
	}
	fmt.Println("Out of turns without reaching an ending.")
}

// act performs the player's action: "take N" picks up an item, anything else
// is read as a choice label.
func act(ctx context.Context, svc *game.Service, owner models.Identity, view *game.SceneView, action string) (string, *game.TurnResult) {
	fields := strings.Fields(strings.ToLower(action))
	if len(fields) == 2 && fields[0] == "take" {
		for i, it := range view.Items {
			if fields[1] == fmt.Sprint(i+1) || strings.EqualFold(fields[1], it.ID) {
				if _, err := svc.PickupItem(ctx, owner, it.ID); err != nil {
					return "could not take it: " + err.Error(), nil
				}
				return "picked up " + it.Name, nil
			}
		}
		return "there is no such item here", nil
	}

	label := ""
	for _, r := range action {
		if unicode.IsLetter(r) {
			label = strings.ToUpper(string(r))
			break
		}
	}
	res, err := svc.ApplyChoice(ctx, owner, models.ChoiceID(view.Scene.ID, label))
	if err != nil {
		return "rejected: " + err.Error(), nil
	}
	if res.Died {
		return "died in " + res.Destination.Title, res
	}
	return "moved to " + res.Destination.Title, res
}

func getPlayerAction(ctx context.Context, model *genai.GenerativeModel, view *game.SceneView, history []string) string {
	var options strings.Builder
	for _, c := range view.Choices {
		lock := ""
		if c.Locked {
			lock = " (locked: needs an item you do not have)"
		}
		fmt.Fprintf(&options, "%s) %s%s\n", c.Choice.Label, c.Choice.Text, lock)
	}
	for i, it := range view.Items {
		fmt.Fprintf(&options, "take %d) pick up the %s\n", i+1, it.Name)
	}

	recent := history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	prompt := fmt.Sprintf(`You are playing a text adventure set in a castle. Try to find the best ending.
Scene: %s
%s

Inventory: %v

Recent history:
%s

Options:
%s
Reply with ONLY the option: a single letter, or "take N".`,
		view.Scene.Title,
		view.Scene.Description,
		view.State.Inventory,
		strings.Join(recent, "\n"),
		options.String(),
	)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return fallbackAction(view)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]))
}

// fallbackAction takes the first open choice when the model gives no answer.
func fallbackAction(view *game.SceneView) string {
	for _, c := range view.Choices {
		if !c.Locked {
			return c.Choice.Label
		}
	}
	return "A"
}
