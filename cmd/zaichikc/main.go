package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"zaichik/client"
)

func main() {
	app := &cli.App{
		Name:  "zaichikc",
		Usage: "a command-line zaichik client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8889", Usage: "broker address"},
		},
		Commands: []*cli.Command{
			{
				Name:      "create-topic",
				Usage:     "create a topic with explicit retention and compaction",
				ArgsUsage: "<topic>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "retention", Value: 0},
					&cli.DurationFlag{Name: "compaction", Value: 0},
				},
				Action: runCreateTopic,
			},
			{
				Name:      "publish",
				Usage:     "publish one message to a topic",
				ArgsUsage: "<topic> <payload>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "compaction key"},
				},
				Action: runPublish,
			},
			{
				Name:      "subscribe",
				Usage:     "subscribe to a topic and print every delivered message",
				ArgsUsage: "<topic>",
				Action:    runSubscribe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect(cliCtx *cli.Context) (*client.Client, error) {
	return client.Connect(cliCtx.String("addr"))
}

func runCreateTopic(cliCtx *cli.Context) error {
	topic := cliCtx.Args().Get(0)
	if topic == "" {
		return fmt.Errorf("zaichikc: create-topic requires a topic name")
	}

	c, err := connect(cliCtx)
	if err != nil {
		return err
	}
	defer c.Close()

	retention := cliCtx.Duration("retention")
	compaction := cliCtx.Duration("compaction")
	if err := c.CreateTopic(topic, retention, compaction); err != nil {
		return err
	}

	frame, err := c.ReadMessage()
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", frame)
	return nil
}

func runPublish(cliCtx *cli.Context) error {
	topic := cliCtx.Args().Get(0)
	payload := cliCtx.Args().Get(1)
	if topic == "" || payload == "" {
		return fmt.Errorf("zaichikc: publish requires <topic> <payload>")
	}

	c, err := connect(cliCtx)
	if err != nil {
		return err
	}
	defer c.Close()

	var key *string
	if k := cliCtx.String("key"); k != "" {
		key = &k
	}

	if err := c.Publish(topic, key, []byte(payload)); err != nil {
		return err
	}

	frame, err := c.ReadMessage()
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", frame)
	return nil
}

func runSubscribe(cliCtx *cli.Context) error {
	topic := cliCtx.Args().Get(0)
	if topic == "" {
		return fmt.Errorf("zaichikc: subscribe requires a topic name")
	}

	c, err := connect(cliCtx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.SubscribeOn(topic); err != nil {
		return err
	}

	for {
		frame, err := c.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %+v\n", time.Now().Format(time.RFC3339), frame)
		_ = c.Commit()
	}
}
