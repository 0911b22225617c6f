package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Cliente de terminal contra un relay corriendo. Hace el mismo
// recorrido que haría el browser: login, elegir thread, mandar prompts
// y consumir el stream SSE imprimiendo los deltas a medida que llegan.

type cliClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
	stream      *http.Client
}

func main() {
	_ = godotenv.Load()

	baseURL := strings.TrimSpace(os.Getenv("RELAY_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	cli := &cliClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		// Sin timeout para el stream; lo corta el servidor o el usuario.
		stream: &http.Client{},
	}
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("relay: %s\n", cli.baseURL)
	if err := cli.loginFlow(reader); err != nil {
		log.Fatalf("login: %v", err)
	}

	threadID, err := cli.pickThread(reader)
	if err != nil {
		log.Fatalf("threads: %v", err)
	}

	fmt.Println("Escribe tu mensaje ('exit' para salir, 'replay <responseId>' para re-consultar).")
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		if rest, ok := strings.CutPrefix(line, "replay "); ok {
			cli.replay(strings.TrimSpace(rest))
			continue
		}

		responseID := uuid.NewString()
		if err := cli.chatStream(threadID, responseID, line); err != nil {
			fmt.Printf("\n[error: %v]\n", err)
			continue
		}
		fmt.Printf("\n[responseId: %s]\n", responseID)
	}
}

func (c *cliClient) loginFlow(reader *bufio.Reader) error {
	fmt.Print("email: ")
	email, _ := reader.ReadString('\n')
	fmt.Print("password: ")
	password, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)

	body := map[string]string{"email": email, "password": password}
	var out struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	status, err := c.postJSON("/auth/login", body, &out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		fmt.Println("Usuario nuevo: registrando...")
		status, err = c.postJSON("/auth/register", body, &out)
		if err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("register failed: status %d", status)
		}
	} else if status >= 300 {
		return fmt.Errorf("login failed: status %d", status)
	}

	if out.Tokens.AccessToken == "" {
		return fmt.Errorf("no access token in response")
	}
	c.accessToken = out.Tokens.AccessToken
	return nil
}

func (c *cliClient) pickThread(reader *bufio.Reader) (string, error) {
	var out struct {
		Threads []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"threads"`
	}
	status, err := c.getJSON("/threads", &out)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", fmt.Errorf("list threads failed: status %d", status)
	}

	if len(out.Threads) == 0 {
		fmt.Println("Sin threads; se crea uno nuevo con el primer mensaje.")
		return uuid.NewString(), nil
	}

	fmt.Println("Threads:")
	for i, t := range out.Threads {
		title := t.Title
		if title == "" {
			title = "(sin título)"
		}
		fmt.Printf("  %d) %s\n", i+1, title)
	}
	fmt.Print("Elige número (enter = nuevo): ")
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return uuid.NewString(), nil
	}
	idx, err := strconv.Atoi(choice)
	if err != nil || idx < 1 || idx > len(out.Threads) {
		return uuid.NewString(), nil
	}
	return out.Threads[idx-1].ID, nil
}

// chatStream manda el prompt y consume el SSE imprimiendo cada delta.
func (c *cliClient) chatStream(threadID, responseID, prompt string) error {
	payload, err := json.Marshal(map[string]any{
		"prompt":     map[string]string{"role": "user", "content": prompt},
		"threadId":   threadID,
		"responseId": responseID,
		"stream":     true,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	br := bufio.NewReader(resp.Body)
	inErrorEvent := false
	for {
		line, readErr := br.ReadString('\n')
		trim := strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(trim, "event:"):
			inErrorEvent = strings.TrimSpace(strings.TrimPrefix(trim, "event:")) == "error"
		case strings.HasPrefix(trim, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(trim, "data:"))
			if inErrorEvent {
				return fmt.Errorf("stream error: %s", data)
			}
			if data == "[DONE]" {
				return nil
			}
			printDelta(data)
		case trim == "":
			inErrorEvent = false
		}

		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

func printDelta(data string) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return
	}
	for _, choice := range chunk.Choices {
		fmt.Print(choice.Delta.Content)
	}
}

func (c *cliClient) replay(responseID string) {
	if responseID == "" {
		fmt.Println("uso: replay <responseId>")
		return
	}
	var out struct {
		Response struct {
			Content string `json:"content"`
		} `json:"response"`
	}
	status, err := c.getJSON("/responses/"+responseID, &out)
	if err != nil {
		fmt.Printf("[error: %v]\n", err)
		return
	}
	if status == http.StatusNotFound {
		fmt.Println("[respuesta no encontrada o expirada]")
		return
	}
	if status >= 300 {
		fmt.Printf("[status %d]\n", status)
		return
	}
	fmt.Println(out.Response.Content)
}

func (c *cliClient) postJSON(path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return c.doJSON(req, out)
}

func (c *cliClient) getJSON(path string, out any) (int, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return c.doJSON(req, out)
}

func (c *cliClient) doJSON(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1_000_000))
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && resp.StatusCode < 300 && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
