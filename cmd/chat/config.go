package main

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./chat-data"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	WindowSize     int    `env:"WINDOW_SIZE,default=10"`
	PageSize       int    `env:"PAGE_SIZE,default=10"`
}
