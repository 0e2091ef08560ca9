// Command validate checks story content offline and exits non-zero when it
// has integrity problems.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tatianab/castle-adventure/internal/app"
	"github.com/tatianab/castle-adventure/internal/ending"
	"github.com/tatianab/castle-adventure/internal/story"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: validate [story.yaml]\n\nWithout an argument the built-in castle story is checked.\n")
	}
	flag.Parse()

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	g, err := app.LoadStory(path, ending.Default())
	if err != nil {
		return report(err)
	}

	reachable := g.Reachable()
	fmt.Printf("%s: %d scenes, %d items, %d choices, %d endings; %d scenes reachable from %s\n",
		g.Title(), len(g.Scenes()), len(g.Items()), countChoices(g), len(g.Endings()), len(reachable), g.Start())
	return nil
}

func countChoices(g *story.Graph) int {
	n := 0
	for _, s := range g.Scenes() {
		n += len(g.ChoicesFrom(s.ID))
	}
	return n
}

func report(err error) error {
	var ie *story.IntegrityError
	if !errors.As(err, &ie) {
		return err
	}
	for _, p := range ie.Problems {
		fmt.Println("problem:", p)
	}
	for _, id := range ie.Unreachable {
		fmt.Println("unreachable:", id)
	}
	return fmt.Errorf("%d problems, %d unreachable", len(ie.Problems), len(ie.Unreachable))
}
