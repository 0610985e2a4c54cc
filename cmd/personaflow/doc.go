/*
Command personaflow 是 PersonaFlow 的命令行入口。

提供三个子命令:

  - chat: 加载配置与角色定义, 启动交互式会话。每条输入走完整的
    编排循环(记忆写入、状态组合、回应判断、生成、动作、评估)。
  - validate: 校验角色定义文件的格式与必填项。
  - version: 显示构建版本信息。

存储后端(memory/sqlite)、缓存后端(memory/file/database/redis)与
指标开关均由配置文件或 PERSONAFLOW_* 环境变量控制。
*/
package main
