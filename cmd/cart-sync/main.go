// Command cart-sync is a small CLI around the sync engine. It keeps a
// local SQLite snapshot next to the remote cart, so mutations apply
// instantly and survive a server outage.
//
// Usage:
//
//	cart-sync [flags] list
//	cart-sync [flags] add <product-id> <title> <price> [quantity]
//	cart-sync [flags] update <product-id> <quantity>
//	cart-sync [flags] remove <product-id>
//	cart-sync [flags] clear
//	cart-sync [flags] sync
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/raymonnguyen/baubiz-sub000/internal/domain"
	"github.com/raymonnguyen/baubiz-sub000/internal/engine"
	"github.com/raymonnguyen/baubiz-sub000/internal/localstore"
	"github.com/raymonnguyen/baubiz-sub000/internal/remote"
)

func main() {
	serverURL := flag.String("server", getEnv("SERVER_URL", "http://localhost:8080"), "cart server base URL")
	token := flag.String("token", getEnv("TOKEN", "dev-token"), "bearer token")
	userID := flag.String("user", getEnv("USER_ID", "dev-user"), "user id for the local snapshot")
	dbPath := flag.String("db", getEnv("CART_DB", "cart-sync.db"), "local snapshot database path")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	store, err := localstore.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer store.Close()

	client := remote.NewClient(*serverURL, remote.NewStaticTokenProvider(*token))
	eng := engine.New(client, store, engine.Config{})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := eng.Initialize(ctx, *userID); err != nil {
		log.Fatalf("Failed to initialize cart: %v", err)
	}

	if err := run(ctx, eng, flag.Args()); err != nil {
		log.Fatalf("%v", err)
	}

	// Mutations push to the server from background goroutines; give them a
	// moment to land before the process exits. The local snapshot is
	// already written either way.
	waitForIdle(eng, 5*time.Second)
	printCart(eng)
}

func run(ctx context.Context, eng *engine.Engine, args []string) error {
	switch cmd := args[0]; cmd {
	case "list":
		return nil

	case "add":
		if len(args) < 4 {
			return errors.New("usage: add <product-id> <title> <price> [quantity]")
		}
		price, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", args[3], err)
		}
		quantity := 1
		if len(args) > 4 {
			if quantity, err = strconv.Atoi(args[4]); err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[4], err)
			}
		}
		product := domain.Product{ID: args[1], Title: args[2], Price: price}
		return eng.AddItem(ctx, product, quantity)

	case "update":
		if len(args) < 3 {
			return errors.New("usage: update <product-id> <quantity>")
		}
		quantity, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", args[2], err)
		}
		return eng.UpdateQuantity(ctx, args[1], quantity)

	case "remove":
		if len(args) < 2 {
			return errors.New("usage: remove <product-id>")
		}
		return eng.RemoveItem(ctx, args[1])

	case "clear":
		return eng.ClearCart(ctx)

	case "sync":
		return eng.SyncCart(ctx)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func waitForIdle(eng *engine.Engine, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !eng.Status().Syncing {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func printCart(eng *engine.Engine) {
	lines := eng.Items()
	if len(lines) == 0 {
		fmt.Println("cart is empty")
		return
	}
	for _, l := range lines {
		synced := "synced"
		if l.RemoteLineID == "" {
			synced = "local only"
		}
		fmt.Printf("%-12s %-28s x%-3d $%8.2f  (%s)\n", l.ProductID, l.Title, l.Quantity, l.UnitPrice*float64(l.Quantity), synced)
	}
	fmt.Printf("%d items, total $%.2f\n", eng.ItemCount(), eng.Total())

	status := eng.Status()
	if status.SyncFailed {
		fmt.Println("warning: cart is out of sync with the server; run `cart-sync sync` to retry")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
