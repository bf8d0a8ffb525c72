package main

//go:generate swag init -g cmd/alphafeed/main.go -o docs

// @title           Alpha Feed API
// @version         0.1.0
// @description     Chat and market trading signals, scored and merged into one feed.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
