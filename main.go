package main

import (
	"edutest_backend/internal/app"
	"edutest_backend/internal/config"
	"edutest_backend/internal/service"
	"flag"
	"fmt"
	"log"
)

func main() {
	// 命令行参数
	configDir := flag.String("config", "configs", "directory containing config.yaml")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for auth.teacher_password_hash and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := service.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg, *configDir)
	application.Run()
}
