// 交互式会话循环.
//
// 每条用户输入走完整的一轮编排: 写入记忆、组合状态、判断是否回应、
// 生成回复、执行动作、运行评估器.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BaSui01/personaflow/runtime"
	"github.com/BaSui01/personaflow/types"
)

// chatLoop 从标准输入读取消息, 把 agent 的回复打印到标准输出.
func chatLoop(ctx context.Context, rt *runtime.AgentRuntime, userName string) error {
	userID := types.DeterministicID("user:" + userName)
	roomID := types.DeterministicID("room:cli:" + rt.AgentID().String())

	if err := rt.EnsureConnection(ctx, userID, roomID, userName); err != nil {
		return fmt.Errorf("establish connection: %w", err)
	}

	agentName := rt.Character().Name
	fmt.Printf("Chatting with %s. Type 'exit' to quit.\n\n", agentName)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s> ", userName)
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := handleMessage(ctx, rt, roomID, userID, text); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// handleMessage 执行一轮完整的消息处理.
func handleMessage(ctx context.Context, rt *runtime.AgentRuntime, roomID, userID types.UUID, text string) error {
	message := &types.Memory{
		ID:        types.NewID(),
		RoomID:    roomID,
		UserID:    userID,
		Content:   types.Content{Text: text, Source: "cli"},
		CreatedAt: time.Now(),
	}
	if _, err := rt.MessageManager().AddEmbeddingToMemory(ctx, message); err != nil {
		return fmt.Errorf("embed message: %w", err)
	}
	if err := rt.MessageManager().CreateMemory(ctx, message, false); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	state, err := rt.ComposeState(ctx, message, nil)
	if err != nil {
		return fmt.Errorf("compose state: %w", err)
	}

	decision, err := rt.ShouldRespond(ctx, state)
	if err != nil {
		return fmt.Errorf("should respond: %w", err)
	}
	if decision != runtime.DecisionRespond {
		// IGNORE 和 STOP 都不回复, 但评估器照常运行
		_, evalErr := rt.Evaluate(ctx, message, state, false)
		return evalErr
	}

	content, err := rt.Client().GenerateMessageResponse(ctx, runtime.MessageHandlerPrompt(state.Placeholders()))
	if err != nil {
		return fmt.Errorf("generate response: %w", err)
	}

	reply := &types.Memory{
		ID:        types.NewID(),
		RoomID:    roomID,
		UserID:    rt.AgentID(),
		Content:   *content,
		CreatedAt: time.Now(),
	}
	if _, err := rt.MessageManager().AddEmbeddingToMemory(ctx, reply); err != nil {
		return fmt.Errorf("embed reply: %w", err)
	}
	if err := rt.MessageManager().CreateMemory(ctx, reply, false); err != nil {
		return fmt.Errorf("store reply: %w", err)
	}

	fmt.Printf("%s: %s\n", rt.Character().Name, content.Text)

	state, err = rt.UpdateRecentMessageState(ctx, state)
	if err != nil {
		return fmt.Errorf("refresh state: %w", err)
	}

	callback := func(_ context.Context, response types.Content) ([]types.Memory, error) {
		if response.Text != "" {
			fmt.Printf("%s: %s\n", rt.Character().Name, response.Text)
		}
		return nil, nil
	}
	if err := rt.ProcessActions(ctx, message, []types.Memory{*reply}, state, callback); err != nil {
		return fmt.Errorf("process actions: %w", err)
	}

	if _, err := rt.Evaluate(ctx, message, state, true); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}
