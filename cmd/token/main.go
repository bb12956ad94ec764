// Command token prints an access token for the actor named by INTAKE_ACTOR,
// signed with the server secret.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/intakekeeper/internal/server/auth"
	"github.com/dmitrijs2005/intakekeeper/internal/server/config"
)

func main() {

	cfg := config.LoadConfig()

	actor := os.Getenv("INTAKE_ACTOR")
	if actor == "" {
		log.Fatal("INTAKE_ACTOR is not set")
	}

	tok, err := auth.IssueAccessToken(actor, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Println(tok)
}
