package main

import "github.com/stoik/mailbridge/services/mail-service/internal/app"

func main() {
	app.Execute()
}
